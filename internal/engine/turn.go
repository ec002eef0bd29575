// Package engine drives turns: context assembly, the oracle tool loop,
// atomic persistence and the rewind/reroll/sync flows around them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/memory"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/prompts"
	"github.com/Azurakun/AnTiMa-sub000/internal/scribe"
	"github.com/Azurakun/AnTiMa-sub000/internal/tools"
)

const (
	// Tool loop iterations before the oracle is forced to narrate.
	maxToolLoops = 10
	// Re-asks allowed when the oracle returns an empty narrative.
	maxMalformedRetries = 2
	// Narrative chunk size for transport layers with message limits.
	chunkSize = 4000
)

var (
	ErrTurnInFlight    = errors.New("a turn is already in flight for this session")
	ErrSessionInactive = errors.New("session is not active")
	ErrNoTurns         = errors.New("session has no turns yet")
)

// fallbackNarrative stands in when the oracle keeps returning nothing.
// The turn still persists so the player can continue or reroll.
const fallbackNarrative = "*The Dungeon Master stares into the middle distance, lost for words. The moment passes; the world waits for your next move.*"

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	TurnID    int           `json:"turn_id"`
	Narrative string        `json:"narrative"`
	Chunks    []string      `json:"chunks"`
	Debug     *memory.Debug `json:"debug,omitempty"`
}

// Engine is the turn engine. One instance serves every session; the
// registry serializes turns per session.
type Engine struct {
	sessions   interfaces.SessionStore
	turns      interfaces.TurnStore
	worlds     interfaces.WorldStore
	diceLock   interfaces.DiceLock
	oracle     interfaces.Oracle
	memory     *memory.Manager
	dispatcher *tools.Dispatcher
	templates  *prompts.TemplateEngine
	registry   *SessionRegistry
	scribe     *scribe.Worker
}

func NewEngine(
	sessions interfaces.SessionStore,
	turns interfaces.TurnStore,
	worlds interfaces.WorldStore,
	diceLock interfaces.DiceLock,
	oracle interfaces.Oracle,
	mem *memory.Manager,
	dispatcher *tools.Dispatcher,
	templates *prompts.TemplateEngine,
	registry *SessionRegistry,
) *Engine {
	return &Engine{
		sessions:   sessions,
		turns:      turns,
		worlds:     worlds,
		diceLock:   diceLock,
		oracle:     oracle,
		memory:     mem,
		dispatcher: dispatcher,
		templates:  templates,
		registry:   registry,
	}
}

// SetScribe attaches the background extractor. Without one, turns still
// complete; only the secondary extraction pass is skipped.
func (e *Engine) SetScribe(w *scribe.Worker) {
	e.scribe = w
}

// ProcessTurn runs one full turn for a session. msgRef optionally carries
// the front-end's message identifier so a later rewind or resync can
// correlate the turn with rendered output. Exactly one turn may be in
// flight per session; a concurrent call fails fast with ErrTurnInFlight.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, actor, input, msgRef string) (*TurnResult, error) {
	entry, ok := e.registry.Acquire(sessionID)
	if !ok {
		return nil, ErrTurnInFlight
	}
	defer e.registry.Release(entry)

	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active || session.DeleteRequested {
		return nil, ErrSessionInactive
	}

	// A fresh turn invalidates any dice result held for reroll.
	if err := e.diceLock.Clear(ctx, sessionID); err != nil {
		log.Printf("[Engine] dice lock clear failed for %s: %v", sessionID, err)
	}

	return e.runTurn(ctx, entry, session, actor, input, msgRef, false)
}

// runTurn executes the turn pipeline. The caller holds the turn lock.
func (e *Engine) runTurn(ctx context.Context, entry *sessionEntry, session *models.Session, actor, input, msgRef string, isReroll bool) (*TurnResult, error) {
	sessionID := session.ID

	if err := e.memory.ArchiveOldTurns(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("archive old turns: %w", err)
	}

	block, debug, err := e.memory.BuildContextBlock(ctx, session, input)
	if err != nil {
		return nil, fmt.Errorf("build context block: %w", err)
	}

	world, err := e.worlds.GetWorldState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load world state: %w", err)
	}

	preamble, err := e.templates.Render(prompts.TemplateSystemPreamble, map[string]string{
		"scenario":     session.Scenario,
		"lore":         session.Lore,
		"memory_block": block,
	})
	if err != nil {
		return nil, fmt.Errorf("render preamble: %w", err)
	}

	turnID := session.TotalTurns + 1
	turnPrompt, err := e.renderTurnPrompt(session, world, actor, input, turnID)
	if err != nil {
		return nil, fmt.Errorf("render turn prompt: %w", err)
	}

	// The preamble is rebuilt every call so the memory block stays
	// current; the registry keeps only the user/assistant exchange log.
	entry.turnMark = len(entry.conversation)
	messages := make([]interfaces.Message, 0, len(entry.conversation)+2)
	messages = append(messages, interfaces.Message{Role: interfaces.RoleSystem, Content: preamble})
	messages = append(messages, entry.conversation...)
	messages = append(messages, interfaces.Message{Role: interfaces.RoleUser, Content: turnPrompt})

	inv := &tools.Invocation{Session: session, World: world, IsReroll: isReroll}
	narrative, err := e.toolLoop(ctx, messages, inv)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	turn := &models.Turn{
		SessionID:     sessionID,
		TurnID:        turnID,
		Input:         input,
		Output:        narrative,
		UserMessageID: msgRef,
		CreatedAt:     now,
	}
	if err := e.turns.AppendTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("persist turn: %w", err)
	}
	session.TotalTurns = turnID

	if err := e.sessions.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	// Merge-save so a scribe pass finishing mid-turn is not clobbered by
	// this turn's older world snapshot.
	if err := e.dispatcher.PersistWorld(ctx, e.worlds, inv); err != nil {
		return nil, fmt.Errorf("persist world: %w", err)
	}
	world = inv.World

	entry.conversation = append(entry.conversation,
		interfaces.Message{Role: interfaces.RoleUser, Content: turnPrompt},
		interfaces.Message{Role: interfaces.RoleAssistant, Content: narrative},
	)

	if e.scribe != nil {
		e.scribe.Enqueue(scribe.Job{
			SessionID:    sessionID,
			Narrative:    narrative,
			KnownNames:   knownEntityNames(world),
			Participants: session.Players,
		})
	}

	return &TurnResult{
		TurnID:    turnID,
		Narrative: narrative,
		Chunks:    chunkNarrative(narrative, turnID, world.Environment.Clock, debug.ApproxTokens),
		Debug:     debug,
	}, nil
}

// toolLoop runs oracle rounds until a narrative arrives. Tool calls
// within a round execute sequentially against the shared invocation, so
// a damage roll is visible to the heal that follows it.
func (e *Engine) toolLoop(ctx context.Context, messages []interfaces.Message, inv *tools.Invocation) (string, error) {
	schemas := tools.Schemas()

	for i := 0; i < maxToolLoops; i++ {
		resp, err := e.oracle.Send(ctx, messages, schemas)
		if err != nil {
			return "", fmt.Errorf("oracle send: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Text) != "" {
				return resp.Text, nil
			}
			return e.retryMalformed(ctx, messages)
		}

		messages = append(messages, interfaces.Message{
			Role:      interfaces.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := e.dispatcher.Execute(ctx, inv, call)
			messages = append(messages, interfaces.Message{
				Role:       interfaces.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	// Loop budget exhausted: demand narration with tools withheld.
	wrapUp, err := e.templates.Render(prompts.TemplateForcedWrapUp, nil)
	if err != nil {
		return "", err
	}
	messages = append(messages, interfaces.Message{Role: interfaces.RoleUser, Content: wrapUp})
	resp, err := e.oracle.Send(ctx, messages, nil)
	if err != nil {
		return "", fmt.Errorf("forced wrap-up: %w", err)
	}
	if strings.TrimSpace(resp.Text) != "" {
		return resp.Text, nil
	}
	return e.retryMalformed(ctx, messages)
}

func (e *Engine) retryMalformed(ctx context.Context, messages []interfaces.Message) (string, error) {
	retry, err := e.templates.Render(prompts.TemplateMalformedRetry, nil)
	if err != nil {
		return "", err
	}
	for i := 0; i < maxMalformedRetries; i++ {
		messages = append(messages, interfaces.Message{Role: interfaces.RoleUser, Content: retry})
		resp, err := e.oracle.Send(ctx, messages, nil)
		if err != nil {
			return "", fmt.Errorf("malformed retry: %w", err)
		}
		if strings.TrimSpace(resp.Text) != "" {
			return resp.Text, nil
		}
	}
	log.Printf("[Engine] oracle produced no narrative after %d retries, using fallback", maxMalformedRetries)
	return fallbackNarrative, nil
}

func (e *Engine) renderTurnPrompt(session *models.Session, world *models.WorldState, actor, input string, turnID int) (string, error) {
	pacing := prompts.ClassifyPacing(input)
	social := ""
	if prompts.IsPassive(input) {
		social = prompts.SocialPressureDirective()
	}

	return e.templates.Render(prompts.TemplateTurnPrompt, map[string]string{
		"turn_number":     fmt.Sprintf("%d", turnID),
		"clock":           world.Environment.Clock,
		"location":        currentLocation(world),
		"quest":           activeQuest(world),
		"vitals":          partyVitals(session),
		"pacing":          prompts.PacingDirective(pacing),
		"social_pressure": social,
		"actor":           actor,
		"input":           input,
	})
}

// currentLocation is the most recently touched location entity.
func currentLocation(w *models.WorldState) string {
	var name string
	var latest time.Time
	for _, e := range w.Locations {
		if name == "" || e.LastUpdated.After(latest) {
			name = e.Name
			latest = e.LastUpdated
		}
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

// activeQuest is the first active quest by name order, for a stable HUD.
func activeQuest(w *models.WorldState) string {
	keys := make([]string, 0, len(w.Quests))
	for k := range w.Quests {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q := w.Quests[k]
		if q.Status == "" || q.Status == "active" {
			return q.Name
		}
	}
	return "None"
}

func partyVitals(session *models.Session) string {
	ids := make([]string, 0, len(session.PlayerStats))
	for id := range session.PlayerStats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		cs := session.PlayerStats[id]
		parts = append(parts, fmt.Sprintf("%s HP %d/%d MP %d/%d", cs.Name, cs.HP, cs.MaxHP, cs.MP, cs.MaxMP))
	}
	if len(parts) == 0 {
		return "no characters"
	}
	return strings.Join(parts, ", ")
}

func knownEntityNames(w *models.WorldState) []string {
	var names []string
	for _, cat := range []map[string]*models.Entity{w.NPCs, w.Locations, w.Quests, w.Events} {
		for _, e := range cat {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

// chunkNarrative splits a narrative into transport-sized chunks on
// paragraph boundaries where possible. The last chunk carries the turn
// footer with a rough context-size readout.
func chunkNarrative(narrative string, turnID int, clock string, contextTokens int) []string {
	footer := fmt.Sprintf("\n\n[Turn %d | Time %s | Context ~%d tokens]", turnID, clock, contextTokens)
	// The last chunk must fit its footer inside the transport bound.
	budget := chunkSize - len(footer)

	var chunks []string
	rest := strings.TrimSpace(narrative)
	for len(rest) > budget {
		limit := chunkSize
		if len(rest) <= chunkSize {
			limit = budget
		}
		cut := strings.LastIndex(rest[:limit], "\n\n")
		if cut < limit/2 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	chunks = append(chunks, rest+footer)
	return chunks
}

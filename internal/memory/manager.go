// Package memory assembles the bounded prompt context for a turn and
// owns the archival memory index: archive-on-overflow, rewind purges and
// full resync from a rebuilt transcript.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

const (
	// Live turns kept before the oldest are archived into the index.
	retentionThreshold = 30
	// Raw recent turns included verbatim in the context block.
	recentTurnCount = 10
	// Similarity hits retrieved per turn.
	retrievalLimit = 5
	// Overall context block size budget in bytes.
	blockBudget = 12000
)

// Debug describes what went into a context block.
type Debug struct {
	ApproxTokens  int      `json:"approx_tokens"`
	Components    []string `json:"components"`
	RetrievalHits int      `json:"retrieval_hits"`
	ActiveNPCs    []string `json:"active_npcs"`
}

// Manager is the context assembler.
type Manager struct {
	turns    interfaces.TurnStore
	worlds   interfaces.WorldStore
	index    interfaces.VectorIndex
	embedder interfaces.Embedder
}

func NewManager(turns interfaces.TurnStore, worlds interfaces.WorldStore, index interfaces.VectorIndex, embedder interfaces.Embedder) *Manager {
	return &Manager{turns: turns, worlds: worlds, index: index, embedder: embedder}
}

// BuildContextBlock combines the current world snapshot, recent raw
// turns and similarity-retrieved older fragments into one bounded block.
func (m *Manager) BuildContextBlock(ctx context.Context, session *models.Session, input string) (string, *Debug, error) {
	debug := &Debug{}
	var b strings.Builder

	world, err := m.worlds.GetWorldState(ctx, session.ID)
	if err != nil {
		return "", nil, fmt.Errorf("load world state: %w", err)
	}
	b.WriteString(serializeWorld(world))
	debug.Components = append(debug.Components, "world_state")

	recent, err := m.turns.RecentTurns(ctx, session.ID, recentTurnCount)
	if err != nil {
		return "", nil, fmt.Errorf("load recent turns: %w", err)
	}
	if len(recent) > 0 {
		b.WriteString("## Recent events\n")
		for _, t := range recent {
			b.WriteString(fmt.Sprintf("Player: %s\nDM: %s\n", t.Input, t.Output))
		}
		b.WriteString("\n")
		debug.Components = append(debug.Components, "recent_turns")
	}

	// Retrieval is best effort: a missing embedder or index degrades the
	// block, not the turn.
	if m.embedder != nil && m.index != nil && strings.TrimSpace(input) != "" {
		if fragments := m.retrieve(ctx, session.ID, input); len(fragments) > 0 {
			b.WriteString("## Older memories\n")
			for _, f := range fragments {
				b.WriteString("- " + f.Text + "\n")
			}
			b.WriteString("\n")
			debug.Components = append(debug.Components, "retrieval")
			debug.RetrievalHits = len(fragments)
		}
	}

	block := b.String()
	if len(block) > blockBudget {
		block = block[:blockBudget]
	}
	debug.ApproxTokens = len(block) / 4
	debug.ActiveNPCs = activeNPCs(world, recent, input)
	return block, debug, nil
}

func (m *Manager) retrieve(ctx context.Context, sessionID, input string) []*models.MemoryFragment {
	vec, err := m.embedder.Embed(ctx, input)
	if err != nil {
		log.Printf("[Memory] embed query failed: %v", err)
		return nil
	}
	fragments, err := m.index.Search(ctx, sessionID, vec, retrievalLimit)
	if err != nil {
		log.Printf("[Memory] retrieval failed: %v", err)
		return nil
	}
	return fragments
}

// ArchiveOldTurns relocates turn-history overflow into the archival
// index. Nothing is lost in aggregate; only message ids are dropped from
// the archived copy.
func (m *Manager) ArchiveOldTurns(ctx context.Context, sessionID string) error {
	count, err := m.turns.TurnCount(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("count turns: %w", err)
	}
	if count <= retentionThreshold {
		return nil
	}

	overflow, err := m.turns.DeleteOldest(ctx, sessionID, count-retentionThreshold)
	if err != nil {
		return fmt.Errorf("trim overflow: %w", err)
	}
	for _, t := range overflow {
		if err := m.ingestFragment(ctx, sessionID, t.TurnID, formatTurn(t), t.CreatedAt, models.ProvenanceArchivedHistory); err != nil {
			return fmt.Errorf("archive turn %d: %w", t.TurnID, err)
		}
	}
	return nil
}

// TrimHistory deletes all turns with id > turnID from live history and
// returns the deleted turns.
func (m *Manager) TrimHistory(ctx context.Context, sessionID string, turnID int) ([]*models.Turn, error) {
	deleted, err := m.turns.DeleteAfter(ctx, sessionID, turnID)
	if err != nil {
		return nil, fmt.Errorf("trim history: %w", err)
	}
	return deleted, nil
}

// PurgeMemories removes archival fragments derived from turns after the
// rewind point, so a rewound timeline cannot retrieve future facts. The
// purge runs on the fragments' own turn ids, reaching turns that were
// already archived out of live history.
func (m *Manager) PurgeMemories(ctx context.Context, sessionID string, afterTurn int) error {
	if m.index == nil {
		return nil
	}
	return m.index.PurgeTurns(ctx, sessionID, afterTurn)
}

// ClearIndex drops every fragment for a session (resync, deletion).
func (m *Manager) ClearIndex(ctx context.Context, sessionID string) error {
	if m.index == nil {
		return nil
	}
	return m.index.Clear(ctx, sessionID)
}

// SplitRetention trims a freshly replaced history down to the live
// retention window, returning the trimmed overflow and the turns that
// stayed live. Turn ids are untouched; only the oldest rows move out.
func (m *Manager) SplitRetention(ctx context.Context, sessionID string, turns []*models.Turn) (old, live []*models.Turn, err error) {
	if len(turns) <= retentionThreshold {
		return nil, turns, nil
	}
	cut := len(turns) - retentionThreshold
	if _, err := m.turns.DeleteOldest(ctx, sessionID, cut); err != nil {
		return nil, nil, err
	}
	return turns[:cut], turns[cut:], nil
}

// IngestTurns indexes a rebuilt transcript as historical_sync fragments.
func (m *Manager) IngestTurns(ctx context.Context, sessionID string, turns []*models.Turn) error {
	for _, t := range turns {
		if err := m.ingestFragment(ctx, sessionID, t.TurnID, formatTurn(t), t.CreatedAt, models.ProvenanceHistoricalSync); err != nil {
			return fmt.Errorf("ingest turn %d: %w", t.TurnID, err)
		}
	}
	return nil
}

func (m *Manager) ingestFragment(ctx context.Context, sessionID string, turnID int, text string, at time.Time, prov models.Provenance) error {
	if m.index == nil || m.embedder == nil {
		return nil
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return m.index.StoreFragment(ctx, &models.MemoryFragment{
		SessionID:  sessionID,
		TurnID:     turnID,
		Text:       text,
		Timestamp:  at,
		Provenance: prov,
	}, vec)
}

func formatTurn(t *models.Turn) string {
	return fmt.Sprintf("Player: %s\nDM: %s", t.Input, t.Output)
}

// serializeWorld renders a compact snapshot of the world model.
func serializeWorld(w *models.WorldState) string {
	var b strings.Builder
	b.WriteString("## World state\n")
	b.WriteString(fmt.Sprintf("Time %s, weather %s.\n", w.Environment.Clock, w.Environment.Weather))

	writeCategory(&b, "NPCs", w.NPCs)
	writeCategory(&b, "Locations", w.Locations)
	writeCategory(&b, "Quests", w.Quests)
	writeCategory(&b, "Events", w.Events)

	open := 0
	for _, note := range w.StoryLog {
		if note.Status == "open" {
			if open == 0 {
				b.WriteString("Open threads:\n")
			}
			b.WriteString("- " + note.Note + "\n")
			open++
		}
	}
	b.WriteString("\n")
	return b.String()
}

func writeCategory(b *strings.Builder, label string, entities map[string]*models.Entity) {
	if len(entities) == 0 {
		return
	}
	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString(label + ":\n")
	for _, k := range keys {
		e := entities[k]
		line := "- " + e.Name
		if e.Status != "" {
			line += " (" + e.Status + ")"
		}
		if e.Details != "" {
			line += ": " + e.Details
		}
		b.WriteString(line + "\n")
	}
}

// activeNPCs infers which NPCs this turn is about: any NPC whose name or
// alias appears in the current input or the most recent turns.
func activeNPCs(w *models.WorldState, recent []*models.Turn, input string) []string {
	var corpus strings.Builder
	corpus.WriteString(strings.ToLower(input))
	for i := max(0, len(recent)-3); i < len(recent); i++ {
		corpus.WriteString(" " + strings.ToLower(recent[i].Input))
		corpus.WriteString(" " + strings.ToLower(recent[i].Output))
	}
	text := corpus.String()

	var active []string
	for _, e := range w.NPCs {
		names := append([]string{e.Name}, e.Attributes.Aliases...)
		for _, n := range names {
			if n != "" && strings.Contains(text, strings.ToLower(n)) {
				active = append(active, e.Name)
				break
			}
		}
	}
	sort.Strings(active)
	return active
}

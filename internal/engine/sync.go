package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/scribe"
)

// Scribe re-extraction chunk size for the sync path.
const syncChunkSize = 4000

// TranscriptMessage is one raw message pulled from an external channel
// log, the source of truth a session is rebuilt from.
type TranscriptMessage struct {
	MessageID string    `json:"message_id"`
	Author    string    `json:"author"`
	IsDM      bool      `json:"is_dm"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncResult summarizes a transcript rebuild.
type SyncResult struct {
	Turns     int `json:"turns"`
	Ingested  int `json:"ingested"`
	LiveTurns int `json:"live_turns"`
}

// Sync rebuilds a session's entire derived state from a raw transcript:
// live turn history, archival index and world facts. It is idempotent;
// running it twice on the same transcript converges to the same state,
// because world merges deduplicate and the index is cleared first.
func (e *Engine) Sync(ctx context.Context, sessionID string, transcript []TranscriptMessage) (*SyncResult, error) {
	entry, ok := e.registry.Acquire(sessionID)
	if !ok {
		return nil, ErrTurnInFlight
	}
	defer e.registry.Release(entry)

	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turns := PairTranscript(sessionID, transcript)
	if err := e.turns.ReplaceHistory(ctx, sessionID, turns); err != nil {
		return nil, fmt.Errorf("replace history: %w", err)
	}
	if err := e.memory.ClearIndex(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("clear index: %w", err)
	}

	// Turns beyond the live retention window move straight to the index.
	old, live, err := e.memory.SplitRetention(ctx, sessionID, turns)
	if err != nil {
		return nil, fmt.Errorf("trim live history: %w", err)
	}
	if err := e.memory.IngestTurns(ctx, sessionID, old); err != nil {
		return nil, fmt.Errorf("ingest turns: %w", err)
	}

	session.TotalTurns = len(turns)
	if err := e.sessions.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	entry.conversation = nil
	entry.turnMark = 0

	// Best-effort world recovery: replay the whole narrative through the
	// scribe in bounded chunks. Merge rules keep this idempotent.
	if e.scribe != nil {
		world, err := e.worlds.GetWorldState(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		for _, chunk := range chunkTranscript(turns) {
			err := e.scribe.Extract(ctx, scribe.Job{
				SessionID:    sessionID,
				Narrative:    chunk,
				KnownNames:   knownEntityNames(world),
				Participants: session.Players,
			})
			if err != nil {
				log.Printf("[Engine] sync extraction failed for %s: %v", sessionID, err)
			}
		}
	}

	return &SyncResult{Turns: len(turns), Ingested: len(old), LiveTurns: len(live)}, nil
}

// PairTranscript folds a raw message stream into turns: each block of
// consecutive participant messages pairs with the narrative block that
// follows it. Narration before the first participant message is the
// scene opener and produces no turn; a trailing participant block with
// no reply is dropped.
func PairTranscript(sessionID string, transcript []TranscriptMessage) []*models.Turn {
	msgs := make([]TranscriptMessage, len(transcript))
	copy(msgs, transcript)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })

	var turns []*models.Turn
	var current *models.Turn
	inNarrative := false

	for _, m := range msgs {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}

		if m.IsDM {
			if current == nil {
				continue
			}
			if current.Output != "" {
				current.Output += "\n\n"
			}
			current.Output += text
			current.BotMessageIDs = append(current.BotMessageIDs, m.MessageID)
			inNarrative = true
			continue
		}

		if current == nil || inNarrative {
			if current != nil && current.Output != "" {
				turns = append(turns, current)
			}
			current = &models.Turn{
				SessionID:     sessionID,
				UserMessageID: m.MessageID,
				CreatedAt:     m.Timestamp,
			}
			inNarrative = false
		}
		if current.Input != "" {
			current.Input += "\n"
		}
		if m.Author != "" {
			current.Input += m.Author + ": " + text
		} else {
			current.Input += text
		}
	}
	if current != nil && current.Output != "" {
		turns = append(turns, current)
	}

	for i, t := range turns {
		t.TurnID = i + 1
	}
	return turns
}

// chunkTranscript renders turns as plain narrative chunks for scribe
// replay.
func chunkTranscript(turns []*models.Turn) []string {
	var chunks []string
	var b strings.Builder
	for _, t := range turns {
		entry := fmt.Sprintf("Player: %s\nDM: %s\n\n", t.Input, t.Output)
		if b.Len() > 0 && b.Len()+len(entry) > syncChunkSize {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		b.WriteString(entry)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

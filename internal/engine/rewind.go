package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// Rewind truncates a session back to turnID. Turns after that point are
// deleted from live history, and every archival fragment derived from a
// later turn is purged so the restored timeline cannot recall its own
// future, even when those turns were already archived out of the live
// window.
func (e *Engine) Rewind(ctx context.Context, sessionID string, turnID int) (int, error) {
	entry, ok := e.registry.Acquire(sessionID)
	if !ok {
		return 0, ErrTurnInFlight
	}
	defer e.registry.Release(entry)

	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if turnID < 0 || turnID > session.TotalTurns {
		return 0, fmt.Errorf("rewind target %d out of range [0,%d]", turnID, session.TotalTurns)
	}
	if turnID == session.TotalTurns {
		return 0, nil
	}

	deleted, err := e.memory.TrimHistory(ctx, sessionID, turnID)
	if err != nil {
		return 0, err
	}
	if err := e.memory.PurgeMemories(ctx, sessionID, turnID); err != nil {
		return 0, fmt.Errorf("purge memories: %w", err)
	}

	session.TotalTurns = turnID
	if err := e.sessions.UpdateSession(ctx, session); err != nil {
		return 0, fmt.Errorf("persist session: %w", err)
	}

	// The in-process conversation no longer matches history; drop it so
	// the next turn rebuilds from the stores.
	entry.conversation = nil
	entry.turnMark = 0

	if err := e.diceLock.Clear(ctx, sessionID); err != nil {
		log.Printf("[Engine] dice lock clear failed for %s: %v", sessionID, err)
	}
	return len(deleted), nil
}

// Reroll discards the latest turn and re-runs it with the same input.
// Dice results locked during the original turn are replayed, not
// rerolled: fate does not change on a retake, only its telling.
func (e *Engine) Reroll(ctx context.Context, sessionID string) (*TurnResult, error) {
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
	if session.TotalTurns == 0 {
		return nil, ErrNoTurns
	}

	recent, err := e.turns.RecentTurns(ctx, sessionID, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, ErrNoTurns
	}
	last := recent[0]

	if _, err := e.turns.DeleteAfter(ctx, sessionID, last.TurnID-1); err != nil {
		return nil, fmt.Errorf("drop last turn: %w", err)
	}
	session.TotalTurns = last.TurnID - 1
	if err := e.sessions.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	// Roll the conversation back to before the discarded turn so the
	// oracle does not see the narration it is replacing.
	if entry.turnMark <= len(entry.conversation) {
		entry.conversation = entry.conversation[:entry.turnMark]
	}

	return e.runTurn(ctx, entry, session, rerollActor(session), last.Input, last.UserMessageID, true)
}

func rerollActor(session *models.Session) string {
	if len(session.Players) > 0 {
		return session.Players[0]
	}
	return "player"
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// NewSessionParams describes a campaign to create.
type NewSessionParams struct {
	ID        string                            `json:"id"`
	OwnerID   string                            `json:"owner_id"`
	Players   []string                          `json:"players"`
	Sheets    map[string]*models.CharacterSheet `json:"sheets"`
	Scenario  string                            `json:"scenario"`
	Lore      string                            `json:"lore"`
	StoryMode bool                              `json:"story_mode"`
}

// CreateSession provisions a new campaign with default character sheets
// for any player without one.
func (e *Engine) CreateSession(ctx context.Context, p NewSessionParams) (*models.Session, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("session id required")
	}
	if len(p.Players) == 0 {
		return nil, fmt.Errorf("at least one player required")
	}

	stats := make(map[string]*models.CharacterSheet, len(p.Players))
	for _, id := range p.Players {
		if sheet, ok := p.Sheets[id]; ok && sheet != nil {
			stats[id] = sheet
			continue
		}
		stats[id] = &models.CharacterSheet{Name: id, HP: 100, MaxHP: 100, MP: 50, MaxMP: 50}
	}

	session := &models.Session{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Players:     p.Players,
		PlayerStats: stats,
		Scenario:    p.Scenario,
		Lore:        p.Lore,
		Active:      true,
		StoryMode:   p.StoryMode,
		CreatedAt:   time.Now(),
	}
	if err := e.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession deactivates a campaign. History and world state remain
// readable; turns are rejected until it is reactivated.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	if err := e.sessions.SetSessionField(ctx, sessionID, "active", false); err != nil {
		return err
	}
	e.registry.ResetConversation(sessionID)
	return nil
}

// RequestDeletion flags a session for the deferred-deletion sweeper.
func (e *Engine) RequestDeletion(ctx context.Context, sessionID string) error {
	return e.sessions.SetSessionField(ctx, sessionID, "delete_requested", true)
}

// CancelDeletion clears the deletion flag before the sweeper acts on it.
func (e *Engine) CancelDeletion(ctx context.Context, sessionID string) error {
	return e.sessions.SetSessionField(ctx, sessionID, "delete_requested", false)
}

// PurgeSession hard-deletes everything a session owns: turns, world
// state, archival fragments, locks and runtime state.
func (e *Engine) PurgeSession(ctx context.Context, sessionID string) error {
	if err := e.memory.ClearIndex(ctx, sessionID); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	if err := e.worlds.DeleteWorldState(ctx, sessionID); err != nil {
		return fmt.Errorf("delete world: %w", err)
	}
	if err := e.diceLock.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear dice lock: %w", err)
	}
	if err := e.sessions.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	e.registry.Drop(sessionID)
	e.dispatcher.ForgetSession(sessionID)
	return nil
}

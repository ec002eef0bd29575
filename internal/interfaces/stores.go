package interfaces

import (
	"context"
	"errors"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// Store errors shared by every backend.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnNotFound    = errors.New("turn not found")
)

// SessionStore persists campaign sessions.
type SessionStore interface {
	// CreateSession stores a new session. The session must not already exist.
	CreateSession(ctx context.Context, session *models.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// UpdateSession replaces the stored session document.
	UpdateSession(ctx context.Context, session *models.Session) error

	// SetSessionField atomically sets a single field on a session document.
	SetSessionField(ctx context.Context, sessionID, field string, value interface{}) error

	// ListDeleteRequested returns sessions flagged for deferred deletion.
	ListDeleteRequested(ctx context.Context) ([]*models.Session, error)

	// DeleteSession hard-deletes a session and its turns.
	DeleteSession(ctx context.Context, sessionID string) error
}

// TurnStore persists the ordered turn history of a session.
type TurnStore interface {
	// AppendTurn stores a turn and bumps the session's total_turns in the
	// same transaction. Either both writes land or neither does.
	AppendTurn(ctx context.Context, turn *models.Turn) error

	// RecentTurns returns the newest turns, oldest first, up to limit.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]*models.Turn, error)

	// AllTurns returns every live turn for a session, oldest first.
	AllTurns(ctx context.Context, sessionID string) ([]*models.Turn, error)

	// TurnCount returns the number of live turns for a session.
	TurnCount(ctx context.Context, sessionID string) (int, error)

	// DeleteOldest removes the n oldest turns and returns them.
	DeleteOldest(ctx context.Context, sessionID string, n int) ([]*models.Turn, error)

	// DeleteAfter removes all turns with turn_id > turnID and returns them.
	DeleteAfter(ctx context.Context, sessionID string, turnID int) ([]*models.Turn, error)

	// ReplaceHistory swaps the full turn history and total_turns counter.
	// Used by the transcript sync/rebuild path.
	ReplaceHistory(ctx context.Context, sessionID string, turns []*models.Turn) error
}

// WorldStore persists per-session world state documents.
type WorldStore interface {
	// GetWorldState retrieves the world state, creating an empty one if the
	// session has none yet.
	GetWorldState(ctx context.Context, sessionID string) (*models.WorldState, error)

	// SaveWorldState replaces the stored world state document.
	SaveWorldState(ctx context.Context, world *models.WorldState) error

	// UnsetEntity removes a single entity key from a category.
	UnsetEntity(ctx context.Context, sessionID string, cat models.Category, key string) error

	// DeleteWorldState removes a session's world state entirely.
	DeleteWorldState(ctx context.Context, sessionID string) error
}

// VectorIndex stores archival memory fragments for similarity retrieval.
type VectorIndex interface {
	// StoreFragment indexes a fragment with its embedding.
	StoreFragment(ctx context.Context, fragment *models.MemoryFragment, vector []float32) error

	// Search returns fragments for a session ranked by similarity to the
	// query vector.
	Search(ctx context.Context, sessionID string, vector []float32, limit int) ([]*models.MemoryFragment, error)

	// PurgeTurns removes all fragments for a session derived from turns
	// with id > afterTurn. This is the rewind correctness guard: it
	// reaches fragments whose source turns were already archived out of
	// live history.
	PurgeTurns(ctx context.Context, sessionID string, afterTurn int) error

	// Clear removes every fragment for a session.
	Clear(ctx context.Context, sessionID string) error
}

// DiceLock stores a dice result locked for reroll, so a reroll replays the
// original outcome instead of rolling again.
type DiceLock interface {
	// Lock records a dice result for a session, replacing any previous one.
	Lock(ctx context.Context, sessionID string, result string) error

	// Locked returns the stored result, or "" if none is locked.
	Locked(ctx context.Context, sessionID string) (string, error)

	// Clear drops the locked result for a session.
	Clear(ctx context.Context, sessionID string) error
}

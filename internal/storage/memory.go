package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// MemoryStore is an in-memory implementation of SessionStore, TurnStore,
// WorldStore and DiceLock. It backs the degraded mode when MySQL/Redis are
// not configured, and every test.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*models.Session
	turns     map[string][]*models.Turn
	worlds    map[string]*models.WorldState
	diceLocks map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*models.Session),
		turns:     make(map[string][]*models.Turn),
		worlds:    make(map[string]*models.WorldState),
		diceLocks: make(map[string]string),
	}
}

// SessionStore

func (s *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) UpdateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return interfaces.ErrSessionNotFound
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *MemoryStore) SetSessionField(ctx context.Context, sessionID, field string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	switch field {
	case "active":
		session.Active = value.(bool)
	case "story_mode":
		session.StoryMode = value.(bool)
	case "delete_requested":
		session.DeleteRequested = value.(bool)
	case "total_turns":
		session.TotalTurns = value.(int)
	case "campaign_log":
		session.CampaignLog = value.(string)
	case "lore":
		session.Lore = value.(string)
	default:
		return fmt.Errorf("unknown session field %q", field)
	}
	return nil
}

func (s *MemoryStore) ListDeleteRequested(ctx context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Session
	for _, session := range s.sessions {
		if session.DeleteRequested {
			out = append(out, cloneSession(session))
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	delete(s.diceLocks, sessionID)
	return nil
}

// TurnStore

func (s *MemoryStore) AppendTurn(ctx context.Context, turn *models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[turn.SessionID]
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], cloneTurn(turn))
	session.TotalTurns++
	return nil
}

func (s *MemoryStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]*models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sortedTurns(sessionID)
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

func (s *MemoryStore) AllTurns(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTurns(sessionID), nil
}

func (s *MemoryStore) TurnCount(ctx context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns[sessionID]), nil
}

func (s *MemoryStore) DeleteOldest(ctx context.Context, sessionID string, n int) ([]*models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sortedTurns(sessionID)
	if n > len(turns) {
		n = len(turns)
	}
	deleted := turns[:n]
	s.turns[sessionID] = turns[n:]
	return deleted, nil
}

func (s *MemoryStore) DeleteAfter(ctx context.Context, sessionID string, turnID int) ([]*models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sortedTurns(sessionID)
	var kept, deleted []*models.Turn
	for _, t := range turns {
		if t.TurnID > turnID {
			deleted = append(deleted, t)
		} else {
			kept = append(kept, t)
		}
	}
	s.turns[sessionID] = kept
	return deleted, nil
}

func (s *MemoryStore) ReplaceHistory(ctx context.Context, sessionID string, turns []*models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	replaced := make([]*models.Turn, 0, len(turns))
	for _, t := range turns {
		replaced = append(replaced, cloneTurn(t))
	}
	s.turns[sessionID] = replaced
	session.TotalTurns = len(replaced)
	return nil
}

// WorldStore

func (s *MemoryStore) GetWorldState(ctx context.Context, sessionID string) (*models.WorldState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	world, ok := s.worlds[sessionID]
	if !ok {
		return models.NewWorldState(sessionID), nil
	}
	return cloneWorld(world), nil
}

func (s *MemoryStore) SaveWorldState(ctx context.Context, world *models.WorldState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worlds[world.SessionID] = cloneWorld(world)
	return nil
}

func (s *MemoryStore) UnsetEntity(ctx context.Context, sessionID string, cat models.Category, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	world, ok := s.worlds[sessionID]
	if !ok {
		return nil
	}
	entities := world.Entities(cat)
	if entities == nil {
		return fmt.Errorf("unknown category %q", cat)
	}
	delete(entities, key)
	return nil
}

func (s *MemoryStore) DeleteWorldState(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.worlds, sessionID)
	return nil
}

// DiceLock

func (s *MemoryStore) Lock(ctx context.Context, sessionID string, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diceLocks[sessionID] = result
	return nil
}

func (s *MemoryStore) Locked(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diceLocks[sessionID], nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.diceLocks, sessionID)
	return nil
}

func (s *MemoryStore) sortedTurns(sessionID string) []*models.Turn {
	turns := append([]*models.Turn(nil), s.turns[sessionID]...)
	sort.Slice(turns, func(i, j int) bool { return turns[i].TurnID < turns[j].TurnID })
	return turns
}

// Deep copies via JSON keep callers from mutating stored documents, the
// same isolation a real document store gives.
func cloneSession(in *models.Session) *models.Session {
	var out models.Session
	cloneJSON(in, &out)
	return &out
}

func cloneTurn(in *models.Turn) *models.Turn {
	var out models.Turn
	cloneJSON(in, &out)
	return &out
}

func cloneWorld(in *models.WorldState) *models.WorldState {
	var out models.WorldState
	cloneJSON(in, &out)
	ensureMaps(&out)
	return &out
}

func cloneJSON(in, out interface{}) {
	data, _ := json.Marshal(in)
	_ = json.Unmarshal(data, out)
}

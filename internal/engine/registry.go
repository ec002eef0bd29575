package engine

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
)

// SessionRegistry holds the per-session runtime state the engine needs
// between turns: the turn lock, the engine-owned conversation log and the
// in-flight flag. It is created at process start, injected into the
// engine, and entries are dropped on session deletion.
type SessionRegistry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	// turnMu makes "one in-flight turn per session" a hard guarantee:
	// two concurrent turns would race on total_turns and world merges.
	turnMu   sync.Mutex
	inFlight atomic.Bool

	// conversation is the append-only oracle context owned by the
	// engine. The oracle client itself is stateless per call.
	conversation []interfaces.Message
	// turnMark is the conversation length before the latest turn,
	// used to roll the log back on reroll.
	turnMark int
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{entries: make(map[string]*sessionEntry)}
}

func (r *SessionRegistry) entry(sessionID string) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &sessionEntry{}
		r.entries[sessionID] = e
	}
	return e
}

// Acquire takes the session's turn lock, failing fast when a turn is
// already in flight.
func (r *SessionRegistry) Acquire(sessionID string) (*sessionEntry, bool) {
	e := r.entry(sessionID)
	if !e.turnMu.TryLock() {
		return nil, false
	}
	e.inFlight.Store(true)
	return e, true
}

// Release returns the turn lock.
func (r *SessionRegistry) Release(e *sessionEntry) {
	e.inFlight.Store(false)
	e.turnMu.Unlock()
}

// InFlight reports whether a turn is currently processing.
func (r *SessionRegistry) InFlight(sessionID string) bool {
	return r.entry(sessionID).inFlight.Load()
}

// Drop removes a session's runtime state (deletion, archive).
func (r *SessionRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

// ResetConversation clears the conversation log so the next turn
// re-seeds the system preamble (used by rewind and sync).
func (r *SessionRegistry) ResetConversation(sessionID string) {
	e := r.entry(sessionID)
	e.conversation = nil
	e.turnMark = 0
}

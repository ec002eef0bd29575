package rag

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
)

// MemIndex is an in-memory VectorIndex doing linear cosine search. It
// serves as the degraded mode when Qdrant is not configured, and as the
// index used by tests.
type MemIndex struct {
	mu     sync.RWMutex
	points map[string]*memPoint
}

type memPoint struct {
	fragment models.MemoryFragment
	vector   []float32
}

func NewMemIndex() *MemIndex {
	return &MemIndex{points: make(map[string]*memPoint)}
}

func (m *MemIndex) StoreFragment(ctx context.Context, fragment *models.MemoryFragment, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fragment.ID == "" {
		fragment.ID = NewFragmentID()
	}
	m.points[fragment.ID] = &memPoint{fragment: *fragment, vector: append([]float32(nil), vector...)}
	return nil
}

func (m *MemIndex) Search(ctx context.Context, sessionID string, vector []float32, limit int) ([]*models.MemoryFragment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		fragment models.MemoryFragment
		score    float64
	}
	var candidates []scored
	for _, p := range m.points {
		if p.fragment.SessionID != sessionID {
			continue
		}
		candidates = append(candidates, scored{p.fragment, cosine(vector, p.vector)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*models.MemoryFragment, len(candidates))
	for i := range candidates {
		f := candidates[i].fragment
		out[i] = &f
	}
	return out, nil
}

func (m *MemIndex) PurgeTurns(ctx context.Context, sessionID string, afterTurn int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.fragment.SessionID == sessionID && p.fragment.TurnID > afterTurn {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *MemIndex) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.fragment.SessionID == sessionID {
			delete(m.points, id)
		}
	}
	return nil
}

// Count returns the number of fragments stored for a session.
func (m *MemIndex) Count(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.points {
		if p.fragment.SessionID == sessionID {
			n++
		}
	}
	return n
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/rag"
	"github.com/Azurakun/AnTiMa-sub000/internal/storage"
	"github.com/Azurakun/AnTiMa-sub000/internal/world"
)

// hashEmbedder produces deterministic vectors so similarity search is
// exercisable without a real embedding backend.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 32)
	for i, r := range text {
		vec[i%32] += float32(r%31) / 31
	}
	return vec, nil
}

func setup(t *testing.T) (*Manager, *storage.MemoryStore, *rag.MemIndex, *models.Session) {
	t.Helper()
	store := storage.NewMemoryStore()
	index := rag.NewMemIndex()
	m := NewManager(store, store, index, hashEmbedder{})

	session := &models.Session{
		ID:      "s1",
		Players: []string{"p1"},
		PlayerStats: map[string]*models.CharacterSheet{
			"p1": {Name: "Kael", HP: 100, MaxHP: 100, MP: 50, MaxMP: 50},
		},
		Active: true,
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}
	return m, store, index, session
}

func appendTurns(t *testing.T, store *storage.MemoryStore, sessionID string, n int, start time.Time) {
	t.Helper()
	for i := 1; i <= n; i++ {
		err := store.AppendTurn(context.Background(), &models.Turn{
			SessionID: sessionID,
			TurnID:    i,
			Input:     fmt.Sprintf("input %d", i),
			Output:    fmt.Sprintf("narrative %d", i),
			CreatedAt: start.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestArchiveOldTurns(t *testing.T) {
	m, store, index, session := setup(t)
	ctx := context.Background()
	appendTurns(t, store, session.ID, retentionThreshold+5, time.Now().Add(-time.Hour))

	if err := m.ArchiveOldTurns(ctx, session.ID); err != nil {
		t.Fatal(err)
	}

	count, _ := store.TurnCount(ctx, session.ID)
	if count != retentionThreshold {
		t.Errorf("live turns = %d, want %d", count, retentionThreshold)
	}
	if got := index.Count(session.ID); got != 5 {
		t.Errorf("archived fragments = %d, want 5", got)
	}

	// Archival is lossless in aggregate: the oldest turns survive as
	// fragments, and nothing moves below the threshold.
	if err := m.ArchiveOldTurns(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if got := index.Count(session.ID); got != 5 {
		t.Errorf("re-archive changed fragments = %d, want 5", got)
	}
}

func TestTrimAndPurge_RewindCorrectness(t *testing.T) {
	m, store, index, session := setup(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	appendTurns(t, store, session.ID, 10, base)

	// Fragments on both sides of the rewind point. The turn-7 fragment
	// mimics a turn archived long ago: its id is past the rewind point but
	// its timestamp predates every live turn the trim will delete.
	_ = m.ingestFragment(ctx, session.ID, 2, "old fact", base.Add(2*time.Minute), models.ProvenanceArchivedHistory)
	_ = m.ingestFragment(ctx, session.ID, 7, "early archived future fact", base.Add(3*time.Minute), models.ProvenanceArchivedHistory)
	_ = m.ingestFragment(ctx, session.ID, 8, "future fact", base.Add(8*time.Minute), models.ProvenanceArchivedHistory)

	deleted, err := m.TrimHistory(ctx, session.ID, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 4 {
		t.Fatalf("deleted %d turns, want 4", len(deleted))
	}

	if err := m.PurgeMemories(ctx, session.ID, 6); err != nil {
		t.Fatal(err)
	}

	turns, _ := store.AllTurns(ctx, session.ID)
	for _, turn := range turns {
		if turn.TurnID > 6 {
			t.Errorf("turn %d survived the rewind", turn.TurnID)
		}
	}
	if got := index.Count(session.ID); got != 1 {
		t.Errorf("fragments after purge = %d, want 1 (only the old fact)", got)
	}
}

func TestBuildContextBlock(t *testing.T) {
	m, store, _, session := setup(t)
	ctx := context.Background()
	appendTurns(t, store, session.ID, 3, time.Now().Add(-time.Hour))

	w := models.NewWorldState(session.ID)
	world.Apply(w, models.CategoryNPC, world.Update{Name: "Mara", Status: "alive", Aliases: []string{"The Fox"}})
	world.Apply(w, models.CategoryQuest, world.Update{Name: "Stolen Ledger", Status: "active"})
	if err := store.SaveWorldState(ctx, w); err != nil {
		t.Fatal(err)
	}
	_ = m.ingestFragment(ctx, session.ID, 1, "Mara sold the party a forged map.", time.Now().Add(-2*time.Hour), models.ProvenanceArchivedHistory)

	block, debug, err := m.BuildContextBlock(ctx, session, "I ask Mara about the ledger")
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"World state", "Mara", "Stolen Ledger", "Recent events", "narrative 3"} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q", want)
		}
	}
	if debug.RetrievalHits != 1 {
		t.Errorf("retrieval hits = %d, want 1", debug.RetrievalHits)
	}
	if len(debug.ActiveNPCs) != 1 || debug.ActiveNPCs[0] != "Mara" {
		t.Errorf("active NPCs = %v, want [Mara]", debug.ActiveNPCs)
	}
	if debug.ApproxTokens == 0 {
		t.Error("approx tokens not reported")
	}
	if len(block) > blockBudget {
		t.Errorf("block exceeds budget: %d bytes", len(block))
	}
}

func TestActiveNPCs_AliasMatch(t *testing.T) {
	w := models.NewWorldState("s1")
	world.Apply(w, models.CategoryNPC, world.Update{Name: "Mara", Aliases: []string{"The Fox"}})

	got := activeNPCs(w, nil, "I follow the fox into the alley")
	if len(got) != 1 || got[0] != "Mara" {
		t.Fatalf("active = %v, want [Mara]", got)
	}
}

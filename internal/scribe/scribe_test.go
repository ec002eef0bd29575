package scribe

import (
	"context"
	"strings"
	"testing"

	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/prompts"
	"github.com/Azurakun/AnTiMa-sub000/internal/storage"
	"github.com/Azurakun/AnTiMa-sub000/internal/tools"
)

type scriptedOracle struct {
	script []*interfaces.OracleResponse
	calls  [][]interfaces.Message
}

func (o *scriptedOracle) Send(ctx context.Context, messages []interfaces.Message, schemas []interfaces.ToolSchema) (*interfaces.OracleResponse, error) {
	o.calls = append(o.calls, messages)
	if len(o.script) == 0 {
		return &interfaces.OracleResponse{Text: "nothing"}, nil
	}
	resp := o.script[0]
	o.script = o.script[1:]
	return resp, nil
}

func newTestWorker(t *testing.T, oracle interfaces.Oracle) (*Worker, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	w := NewWorker(oracle, tools.NewDispatcher(store), store, store, prompts.NewTemplateEngine())

	err := store.CreateSession(context.Background(), &models.Session{
		ID:      "s1",
		Players: []string{"p1"},
		Active:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return w, store
}

func TestExtract_RecordsWorldFacts(t *testing.T) {
	oracle := &scriptedOracle{script: []*interfaces.OracleResponse{
		{ToolCalls: []interfaces.ToolCall{
			{ID: "c1", Name: "update_world_entity", Args: map[string]interface{}{
				"category": "npc",
				"name":     "Brother Aldric",
				"status":   "suspicious",
				"details":  "Keeps the bell tower locked at night.",
			}},
		}},
		{Text: "nothing"},
	}}
	w, store := newTestWorker(t, oracle)
	ctx := context.Background()

	err := w.Extract(ctx, Job{
		SessionID:    "s1",
		Narrative:    "Brother Aldric bolts the tower door behind him.",
		Participants: []string{"p1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	world, _ := store.GetWorldState(ctx, "s1")
	npc, ok := world.NPCs["brother_aldric"]
	if !ok {
		t.Fatalf("npc not recorded, world = %+v", world.NPCs)
	}
	if npc.Status != "suspicious" {
		t.Errorf("status = %q", npc.Status)
	}
}

func TestExtract_NoFindingsNoWrite(t *testing.T) {
	oracle := &scriptedOracle{}
	w, store := newTestWorker(t, oracle)
	ctx := context.Background()

	if err := w.Extract(ctx, Job{SessionID: "s1", Narrative: "Rain falls."}); err != nil {
		t.Fatal(err)
	}
	world, _ := store.GetWorldState(ctx, "s1")
	if len(world.NPCs) != 0 {
		t.Errorf("unexpected world write: %+v", world.NPCs)
	}

	// The prompt must carry the narrative it is asked to read.
	if len(oracle.calls) != 1 {
		t.Fatalf("oracle calls = %d", len(oracle.calls))
	}
	if !strings.Contains(oracle.calls[0][0].Content, "Rain falls.") {
		t.Error("narrative missing from prompt")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w, _ := newTestWorker(t, &scriptedOracle{})
	// Worker not started; the queue just fills up.
	for i := 0; i < queueSize+10; i++ {
		w.Enqueue(Job{SessionID: "s1"})
	}
	if len(w.jobs) != queueSize {
		t.Errorf("queue len = %d, want %d", len(w.jobs), queueSize)
	}
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Azurakun/AnTiMa-sub000/internal/config"
	"github.com/Azurakun/AnTiMa-sub000/internal/engine"
	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/memory"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/prompts"
	"github.com/Azurakun/AnTiMa-sub000/internal/rag"
	"github.com/Azurakun/AnTiMa-sub000/internal/storage"
	"github.com/Azurakun/AnTiMa-sub000/internal/tools"
)

type cannedOracle struct{ text string }

func (o cannedOracle) Send(ctx context.Context, messages []interfaces.Message, schemas []interfaces.ToolSchema) (*interfaces.OracleResponse, error) {
	return &interfaces.OracleResponse{Text: o.text}, nil
}

type nullEmbedder struct{}

func (nullEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 8), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	mem := memory.NewManager(store, store, rag.NewMemIndex(), nullEmbedder{})
	eng := engine.NewEngine(
		store, store, store, store,
		cannedOracle{text: "The gate swings open."},
		mem,
		tools.NewDispatcher(store),
		prompts.NewTemplateEngine(),
		engine.NewSessionRegistry(),
	)
	h := NewHandlers(&config.Config{}, eng, store, store, store, NewEventHub(), nil)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func createSession(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/sessions", map[string]interface{}{
		"id":       "s1",
		"owner_id": "owner",
		"players":  []string{"p1"},
		"scenario": "The gate of Vall",
		"lore":     "Nobody opens the gate after dusk.",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	createSession(t, srv)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/s1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var session models.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatal(err)
	}
	if session.ID != "s1" || !session.Active {
		t.Errorf("session = %+v", session)
	}

	resp2, err := http.Get(srv.URL + "/api/v1/sessions/missing")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("missing session status = %d", resp2.StatusCode)
	}
}

func TestSubmitTurn(t *testing.T) {
	srv, store := newTestServer(t)
	createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/s1/turn", turnRequest{Actor: "p1", Input: "I push the gate"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("turn status = %d", resp.StatusCode)
	}

	var result engine.TurnResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.TurnID != 1 || !strings.Contains(result.Narrative, "gate swings open") {
		t.Errorf("result = %+v", result)
	}

	session, _ := store.GetSession(context.Background(), "s1")
	if session.TotalTurns != 1 {
		t.Errorf("total turns = %d", session.TotalTurns)
	}
}

func TestSubmitTurn_MissingActor(t *testing.T) {
	srv, _ := newTestServer(t)
	createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/s1/turn", turnRequest{Input: "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEndSessionBlocksTurns(t *testing.T) {
	srv, _ := newTestServer(t)
	createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/s1/end", nil)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/sessions/s1/turn", turnRequest{Actor: "p1", Input: "anyone?"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestNPCManagement(t *testing.T) {
	srv, store := newTestServer(t)
	createSession(t, srv)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/sessions/s1/world/npc/Gatekeeper Ruth",
		bytes.NewReader([]byte(`{"status":"wary","details":"Watches the road all night.","aliases":["Old Ruth"]}`)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}

	state, _ := store.GetWorldState(context.Background(), "s1")
	npc, ok := state.NPCs["gatekeeper_ruth"]
	if !ok || npc.Status != "wary" {
		t.Fatalf("npc = %+v", state.NPCs)
	}

	del, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/sessions/s1/world/npc/gatekeeper ruth", nil)
	resp, err = http.DefaultClient.Do(del)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	state, _ = store.GetWorldState(context.Background(), "s1")
	if _, ok := state.NPCs["gatekeeper_ruth"]; ok {
		t.Error("npc survived delete")
	}

	// A name with no letters or digits would land on the empty key.
	bad, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/sessions/s1/world/npc/!!!",
		bytes.NewReader([]byte(`{"status":"wary"}`)))
	resp, err = http.DefaultClient.Do(bad)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("punctuation-only name status = %d, want 400", resp.StatusCode)
	}
	state, _ = store.GetWorldState(context.Background(), "s1")
	if _, ok := state.NPCs[""]; ok {
		t.Error("entity recorded under the empty key")
	}
}

func TestExportDocument(t *testing.T) {
	srv, store := newTestServer(t)
	createSession(t, srv)

	resp := postJSON(t, srv.URL+"/api/v1/sessions/s1/turn", turnRequest{Actor: "p1", Input: "I push the gate"})
	resp.Body.Close()

	ctx := context.Background()
	state, _ := store.GetWorldState(ctx, "s1")
	state.Quests["find_the_bell"] = &models.Entity{Name: "Find the Bell", Status: "active"}
	state.NPCs["ruth"] = &models.Entity{Name: "Ruth", Status: "wary"}
	_ = store.SaveWorldState(ctx, state)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/s1/export")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	doc := buf.String()

	for _, section := range []string{"## Lore", "## Party", "## Quest log", "## Dramatis personae", "## Chronicle", "Find the Bell", "Turn 1"} {
		if !strings.Contains(doc, section) {
			t.Errorf("export missing %q", section)
		}
	}

	// Section order is fixed.
	if strings.Index(doc, "## Quest log") > strings.Index(doc, "## Dramatis personae") {
		t.Error("quest log must precede the npc registry")
	}
	if strings.Index(doc, "## Dramatis personae") > strings.Index(doc, "## Chronicle") {
		t.Error("npc registry must precede the chronicle")
	}
}

func TestDeferredDeletionFlow(t *testing.T) {
	srv, store := newTestServer(t)
	createSession(t, srv)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/sessions/s1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	session, _ := store.GetSession(context.Background(), "s1")
	if !session.DeleteRequested {
		t.Error("delete flag not set")
	}

	resp = postJSON(t, srv.URL+"/api/v1/sessions/s1/restore", nil)
	resp.Body.Close()
	session, _ = store.GetSession(context.Background(), "s1")
	if session.DeleteRequested {
		t.Error("delete flag not cleared")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

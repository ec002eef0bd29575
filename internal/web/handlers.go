// Package web exposes the HTTP API: session lifecycle, turn submission,
// rewind and sync, the world dashboard and the event feed.
package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"

	"github.com/Azurakun/AnTiMa-sub000/internal/config"
	"github.com/Azurakun/AnTiMa-sub000/internal/engine"
	"github.com/Azurakun/AnTiMa-sub000/internal/interfaces"
	"github.com/Azurakun/AnTiMa-sub000/internal/models"
	"github.com/Azurakun/AnTiMa-sub000/internal/storage"
	"github.com/Azurakun/AnTiMa-sub000/internal/world"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	config   *config.Config
	engine   *engine.Engine
	sessions interfaces.SessionStore
	turns    interfaces.TurnStore
	worlds   interfaces.WorldStore
	hub      *EventHub
	cache    *storage.RedisStore
}

func NewHandlers(cfg *config.Config, eng *engine.Engine, sessions interfaces.SessionStore, turns interfaces.TurnStore, worlds interfaces.WorldStore, hub *EventHub, cache *storage.RedisStore) *Handlers {
	return &Handlers{
		config:   cfg,
		engine:   eng,
		sessions: sessions,
		turns:    turns,
		worlds:   worlds,
		hub:      hub,
		cache:    cache,
	}
}

func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("REQUEST: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ws/events", h.EventStream)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.RequestDeletion)
			r.Post("/restore", h.CancelDeletion)
			r.Post("/end", h.EndSession)

			r.Post("/turn", h.SubmitTurn)
			r.Post("/reroll", h.Reroll)
			r.Post("/rewind", h.Rewind)
			r.Post("/sync", h.Sync)

			r.Get("/world", h.GetWorld)
			r.Get("/log", h.GetLog)
			r.Get("/history", h.GetHistory)
			r.Get("/export", h.Export)

			r.Put("/world/npc/{name}", h.PutNPC)
			r.Delete("/world/npc/{name}", h.DeleteNPC)
		})
	})

	return r
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "antima",
	})
}

// Session lifecycle

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var params engine.NewSessionParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.engine.CreateSession(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.hub.Broadcast(EventSessionCreated, session.ID, nil)
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	if h.cache != nil {
		if cached, err := h.cache.CachedSession(r.Context(), sessionID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.CacheSession(r.Context(), session); err != nil {
			log.Printf("[Web] session cache write failed: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := h.engine.EndSession(r.Context(), sessionID); err != nil {
		writeStoreError(w, err)
		return
	}
	h.invalidate(r, sessionID)
	h.hub.Broadcast(EventSessionEnded, sessionID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (h *Handlers) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := h.engine.RequestDeletion(r.Context(), sessionID); err != nil {
		writeStoreError(w, err)
		return
	}
	h.invalidate(r, sessionID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "deletion scheduled"})
}

func (h *Handlers) CancelDeletion(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := h.engine.CancelDeletion(r.Context(), sessionID); err != nil {
		writeStoreError(w, err)
		return
	}
	h.invalidate(r, sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deletion cancelled"})
}

// Turn flow

type turnRequest struct {
	Actor     string `json:"actor"`
	Input     string `json:"input"`
	MessageID string `json:"message_id,omitempty"`
}

func (h *Handlers) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Actor) == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	result, err := h.engine.ProcessTurn(r.Context(), sessionID, req.Actor, req.Input, req.MessageID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.invalidate(r, sessionID)
	h.hub.Broadcast(EventTurnCompleted, sessionID, map[string]interface{}{"turn_id": result.TurnID})
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) Reroll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	result, err := h.engine.Reroll(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.invalidate(r, sessionID)
	h.hub.Broadcast(EventTurnCompleted, sessionID, map[string]interface{}{"turn_id": result.TurnID, "reroll": true})
	writeJSON(w, http.StatusOK, result)
}

type rewindRequest struct {
	TurnID int `json:"turn_id"`
}

func (h *Handlers) Rewind(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req rewindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	deleted, err := h.engine.Rewind(r.Context(), sessionID, req.TurnID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.invalidate(r, sessionID)
	h.hub.Broadcast(EventRewind, sessionID, map[string]interface{}{"turn_id": req.TurnID, "deleted": deleted})
	writeJSON(w, http.StatusOK, map[string]interface{}{"turn_id": req.TurnID, "deleted_turns": deleted})
}

type syncRequest struct {
	Transcript []engine.TranscriptMessage `json:"transcript"`
}

func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Transcript) == 0 {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}

	result, err := h.engine.Sync(r.Context(), sessionID, req.Transcript)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.invalidate(r, sessionID)
	h.hub.Broadcast(EventSyncCompleted, sessionID, result)
	writeJSON(w, http.StatusOK, result)
}

// Dashboard

func (h *Handlers) GetWorld(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	state, err := h.worlds.GetWorldState(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) GetLog(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Tail of the campaign log, newest last.
	lines := strings.Split(strings.TrimRight(session.CampaignLog, "\n"), "\n")
	const tail = 50
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": lines})
}

func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	turns, err := h.turns.AllTurns(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	ctx := r.Context()

	session, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	state, err := h.worlds.GetWorldState(ctx, sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	turns, err := h.turns.AllTurns(ctx, sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(BuildExport(session, state, turns)))
}

// NPC management

type npcRequest struct {
	Details string            `json:"details"`
	Status  string            `json:"status"`
	Aliases []string          `json:"aliases"`
	Extra   map[string]string `json:"extra"`
}

func (h *Handlers) PutNPC(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	name := chi.URLParam(r, "name")
	if world.NormalizeKey(name) == "" {
		writeError(w, http.StatusBadRequest, "npc name needs at least one letter or digit")
		return
	}

	var req npcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.worlds.GetWorldState(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	key := world.Apply(state, models.CategoryNPC, world.Update{
		Name:    name,
		Details: req.Details,
		Status:  req.Status,
		Aliases: req.Aliases,
		Extra:   req.Extra,
		At:      time.Now(),
	})
	if err := h.worlds.SaveWorldState(r.Context(), state); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "npc": state.NPCs[key]})
}

func (h *Handlers) DeleteNPC(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	key := world.NormalizeKey(chi.URLParam(r, "name"))

	state, err := h.worlds.GetWorldState(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if _, ok := state.NPCs[key]; !ok {
		writeError(w, http.StatusNotFound, "npc not found")
		return
	}

	if err := h.worlds.UnsetEntity(r.Context(), sessionID, models.CategoryNPC, key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": key})
}

// Event feed

func (h *Handlers) EventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:   generateClientID(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}

// Helpers

func (h *Handlers) invalidate(r *http.Request, sessionID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.InvalidateSession(r.Context(), sessionID); err != nil {
		log.Printf("[Web] session cache invalidate failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrTurnInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrSessionInactive), errors.Is(err, engine.ErrNoTurns):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, interfaces.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}

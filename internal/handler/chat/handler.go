package chat

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentscaffold/backend/internal/model/chat"
	sessionService "github.com/agentscaffold/backend/internal/service/session"
	"github.com/agentscaffold/backend/pkg/utils"
)

// Streamer produces the normalized agent event sequence for a prompt. The
// channel closes once the upstream conversation is exhausted or the context
// is cancelled.
type Streamer interface {
	Stream(ctx context.Context, prompt string) <-chan chat.StreamEvent
}

// Handler serves the session endpoints and the streaming chat endpoint.
type Handler struct {
	sessions *sessionService.Service
	relay    Streamer
}

// New creates the chat handler. relay may be nil when the agent backend is
// not configured; the chat endpoint then reports unavailability.
func New(sessions *sessionService.Service, relay Streamer) *Handler {
	return &Handler{
		sessions: sessions,
		relay:    relay,
	}
}

// RegisterRoutes registers session and chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Post("/chat", h.handleChat)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Create()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"sessionId": session.ID})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(chi.URLParam(r, "sessionID")) {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Session deleted"})
}

// handleChat validates the message, resolves the session and streams the
// relay's events as newline-delimited JSON, one line per event.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message   any    `json:"message"`
		SessionID string `json:"sessionId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Message is required")
		return
	}

	message, ok := payload.Message.(string)
	if !ok || message == "" {
		utils.RespondError(w, http.StatusBadRequest, "Message is required")
		return
	}

	if h.relay == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "agent backend unavailable")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// A known session id is touched; anything else, including a stale id
	// from before an eviction, silently gets a fresh session.
	session, err := h.sessions.Touch(payload.SessionID)
	if err != nil {
		session = h.sessions.Create()
		session, _ = h.sessions.Touch(session.ID)
	}

	utils.SetupStreamHeaders(w)
	w.Header().Set("X-Session-Id", session.ID)

	log.Printf("[chat] starting request session=%s message=%q", session.ID, truncate(message, 50))

	ctx := r.Context()
	for event := range h.relay.Stream(ctx, message) {
		if ctx.Err() != nil {
			log.Printf("[chat] client disconnected session=%s", session.ID)
			return
		}
		utils.WriteJSONLine(w, flusher, event)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

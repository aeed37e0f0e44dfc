// Package api exposes the chat pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trialscout/trialchat/internal/contextstore"
	"github.com/trialscout/trialchat/internal/conversation"
	"github.com/trialscout/trialchat/internal/pipeline"
	"github.com/trialscout/trialchat/pkg/logging"
)

// SessionStore is what the handler needs beyond the chat stage itself.
type SessionStore interface {
	Reset(ctx context.Context, sessionID string) error
	Context(ctx context.Context, sessionID string) (*conversation.Context, error)
	RecentTurns(ctx context.Context, sessionID string) ([]contextstore.TurnRecord, error)
}

// ChatRequest is the POST /v1/chat body.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the chat reply envelope.
type ChatResponse struct {
	SessionID    string         `json:"session_id"`
	Reply        string         `json:"reply"`
	Intent       string         `json:"intent"`
	Confidence   float64        `json:"confidence"`
	State        string         `json:"state"`
	QuickReplies []string       `json:"quick_replies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Cached       bool           `json:"cached,omitempty"`
}

// Handler serves the chat endpoints.
type Handler struct {
	chat     pipeline.Stage
	sessions SessionStore
	logger   *logging.Logger
}

// NewHandler builds the HTTP handler around the assembled pipeline stage.
func NewHandler(chat pipeline.Stage, sessions SessionStore, logger *logging.Logger) *Handler {
	return &Handler{chat: chat, sessions: sessions, logger: logger}
}

// Chat handles POST /v1/chat. A missing session id starts a new session.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode chat request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result, err := h.chat(r.Context(), pipeline.Turn{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Message:   req.Message,
	})
	if err != nil {
		h.respondPipelineError(w, req.SessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID:    result.SessionID,
		Reply:        result.Reply,
		Intent:       string(result.Intent.Type),
		Confidence:   result.Intent.Confidence,
		State:        string(result.State),
		QuickReplies: result.QuickReplies,
		Metadata:     result.Metadata,
		Cached:       result.Cached,
	})
}

// ResetSession handles POST /v1/sessions/{sessionID}/reset.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	if err := h.sessions.Reset(r.Context(), sessionID); err != nil {
		h.logger.Error("failed to reset session", "error", err, "session_id", sessionID)
		http.Error(w, "failed to reset session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "reset"})
}

// SessionView is the GET /v1/sessions/{sessionID} response body.
type SessionView struct {
	Context     *conversation.Context     `json:"context"`
	RecentTurns []contextstore.TurnRecord `json:"recent_turns,omitempty"`
}

// GetSession handles GET /v1/sessions/{sessionID} and returns the stored
// conversational context with the session's recent audit-log turns.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	c, err := h.sessions.Context(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "session_id", sessionID)
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	turns, err := h.sessions.RecentTurns(r.Context(), sessionID)
	if err != nil {
		// The audit log is supplementary; serve the context without it.
		h.logger.Warn("failed to load recent turns", "error", err, "session_id", sessionID)
	}
	writeJSON(w, http.StatusOK, SessionView{Context: c, RecentTurns: turns})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondPipelineError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyMessage), errors.Is(err, pipeline.ErrMissingSession),
		errors.Is(err, pipeline.ErrInvalidSession), errors.Is(err, pipeline.ErrSuspiciousMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, pipeline.ErrRateLimited):
		http.Error(w, "too many messages, slow down", http.StatusTooManyRequests)
	default:
		h.logger.Error("chat turn failed", "error", err, "session_id", sessionID)
		http.Error(w, "something went wrong processing your message", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpulse/makerbot/internal/domain"
	"github.com/quantpulse/makerbot/internal/maker"
)

// SessionHandler exposes start/stop/list control over per-user quoting
// sessions.
type SessionHandler struct {
	manager *maker.SessionManager
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler backed by the given manager.
func NewSessionHandler(manager *maker.SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		logger:  logger.With(slog.String("handler", "session")),
	}
}

// startSessionRequest is the JSON body for starting a session.
type startSessionRequest struct {
	Symbol     string `json:"symbol"`
	IntervalMs int64  `json:"interval_ms"`
}

// sessionResponse is the JSON view of a running session.
type sessionResponse struct {
	UID       string `json:"uid"`
	Symbol    string `json:"symbol"`
	StartedAt string `json:"started_at"`
}

func sessionView(s *maker.Session) sessionResponse {
	return sessionResponse{
		UID:       s.UID,
		Symbol:    s.Symbol,
		StartedAt: s.StartedAt.Format(time.RFC3339),
	}
}

// StartSession starts the quoting loop for a user.
// POST /api/sessions/{uid}/start
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	uid := pathParam(r, "uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing uid")
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	interval := time.Duration(req.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	sess, err := h.manager.StartSession(r.Context(), uid, req.Symbol, interval)
	switch {
	case errors.Is(err, domain.ErrLoopRunning):
		writeError(w, http.StatusConflict, "session already running")
		return
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "user has no credentials or settings")
		return
	case errors.Is(err, domain.ErrSettingsDisabled):
		writeError(w, http.StatusUnprocessableEntity, "maker is disabled for this user")
		return
	case err != nil:
		h.logger.Error("failed to start session",
			slog.String("uid", uid),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	writeJSON(w, http.StatusCreated, sessionView(sess))
}

// StopSession stops the quoting loop for a user.
// POST /api/sessions/{uid}/stop
func (h *SessionHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	uid := pathParam(r, "uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing uid")
		return
	}

	if err := h.manager.StopSession(uid); err != nil {
		if errors.Is(err, domain.ErrLoopNotRunning) {
			writeError(w, http.StatusNotFound, "no session running for this user")
			return
		}
		h.logger.Error("failed to stop session",
			slog.String("uid", uid),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "uid": uid})
}

// ListSessions returns all running sessions.
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	uids := h.manager.Active()
	sessions := make([]sessionResponse, 0, len(uids))
	for _, uid := range uids {
		if sess, ok := h.manager.Session(uid); ok {
			sessions = append(sessions, sessionView(sess))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

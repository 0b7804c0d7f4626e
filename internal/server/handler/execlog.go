package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantpulse/makerbot/internal/domain"
)

// ExecLogHandler serves read access to the per-user execution log.
type ExecLogHandler struct {
	store  domain.ExecutionLogStore
	logger *slog.Logger
}

// NewExecLogHandler creates an ExecLogHandler backed by the given store.
func NewExecLogHandler(store domain.ExecutionLogStore, logger *slog.Logger) *ExecLogHandler {
	return &ExecLogHandler{
		store:  store,
		logger: logger.With(slog.String("handler", "execlog")),
	}
}

// ListEntries returns the user's execution log, newest first. Supports
// limit/offset pagination and an RFC3339 since/until window.
// GET /api/accounts/{uid}/log
func (h *ExecLogHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	uid := pathParam(r, "uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing uid")
		return
	}

	entries, err := h.store.List(r.Context(), uid, parseListOpts(r))
	if err != nil {
		h.logger.Error("failed to list execution log",
			slog.String("uid", uid),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list execution log")
		return
	}
	if entries == nil {
		entries = []domain.ExecutionLogEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantpulse/makerbot/internal/domain"
	"github.com/quantpulse/makerbot/internal/gateway"
)

// AccountHandler serves normalized balance and position queries and the
// close-position operation through the execution gateway.
type AccountHandler struct {
	gw     *gateway.Gateway
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler backed by the given gateway.
func NewAccountHandler(gw *gateway.Gateway, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		gw:     gw,
		logger: logger.With(slog.String("handler", "account")),
	}
}

// GetBalance returns the user's normalized balance, served from cache when
// fresh.
// GET /api/accounts/{uid}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid := pathParam(r, "uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing uid")
		return
	}

	bal, err := h.gw.GetBalance(r.Context(), uid)
	if err != nil {
		h.writeGatewayError(w, uid, "get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_usdt":     bal.TotalUSDT,
		"available_usdt": bal.AvailableUSDT,
		"fetched_at":     bal.FetchedAt,
	})
}

// GetPositions returns the user's normalized open positions, optionally
// filtered by a "symbol" query parameter.
// GET /api/accounts/{uid}/positions
func (h *AccountHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	uid := pathParam(r, "uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing uid")
		return
	}

	positions, err := h.gw.GetPositions(r.Context(), uid, r.URL.Query().Get("symbol"))
	if err != nil {
		h.writeGatewayError(w, uid, "get positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

// ClosePosition submits a reduce-only market order that flattens the user's
// position in the given symbol. Returns 200 with order=null when there is no
// position to close.
// POST /api/accounts/{uid}/positions/{symbol}/close
func (h *AccountHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	uid := pathParam(r, "uid")
	symbol := pathParam(r, "symbol")
	if uid == "" || symbol == "" {
		writeError(w, http.StatusBadRequest, "missing uid or symbol")
		return
	}

	order, err := h.gw.ClosePosition(r.Context(), uid, symbol)
	if err != nil {
		h.writeGatewayError(w, uid, "close position", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order": order,
	})
}

func (h *AccountHandler) writeGatewayError(w http.ResponseWriter, uid, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	default:
		h.logger.Error("gateway call failed",
			slog.String("uid", uid),
			slog.String("op", op),
			slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "exchange request failed")
	}
}

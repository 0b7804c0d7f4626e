package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantpulse/makerbot/internal/domain"
)

// positionCloser is the slice of the execution gateway the one-shot mode
// needs.
type positionCloser interface {
	ClosePosition(ctx context.Context, uid, symbol string) (*domain.Order, error)
}

// ParseCloseSpec splits a close-position argument of the form "uid:symbol".
func ParseCloseSpec(spec string) (uid, symbol string, err error) {
	uid, symbol, ok := strings.Cut(spec, ":")
	uid, symbol = strings.TrimSpace(uid), strings.TrimSpace(symbol)
	if !ok || uid == "" || symbol == "" {
		return "", "", fmt.Errorf("app: close spec %q: want uid:symbol", spec)
	}
	return uid, symbol, nil
}

// closePositionOnce issues a single reduce-only close through the gateway
// and logs the outcome. A flat position is success, not an error.
func closePositionOnce(ctx context.Context, closer positionCloser, logger *slog.Logger, uid, symbol string) error {
	order, err := closer.ClosePosition(ctx, uid, symbol)
	if err != nil {
		return fmt.Errorf("app: close position %s %s: %w", uid, symbol, err)
	}
	if order == nil {
		logger.Info("no open position to close",
			slog.String("uid", uid),
			slog.String("symbol", symbol),
		)
		return nil
	}
	logger.Info("position closed",
		slog.String("uid", uid),
		slog.String("symbol", symbol),
		slog.String("order_id", order.OrderID),
		slog.String("side", string(order.Side)),
		slog.Float64("quantity", order.Quantity),
	)
	return nil
}

// RunClosePosition is the close-position one-shot mode: wire dependencies,
// close the named user's position on the named symbol, tear down, and
// return. Used by operators to flatten a user without starting the server.
func (a *App) RunClosePosition(ctx context.Context, spec string) error {
	uid, symbol, err := ParseCloseSpec(spec)
	if err != nil {
		return err
	}

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	return closePositionOnce(ctx, deps.Gateway, a.logger, uid, symbol)
}

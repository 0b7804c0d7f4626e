// Package gateway is the rate-limited execution gateway: every order
// mutation passes a per-user token bucket before reaching the exchange, and
// heterogeneous connector payloads are normalized into canonical balance and
// position shapes.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/makerbot/internal/domain"
	"github.com/quantpulse/makerbot/internal/exchange"
	"github.com/quantpulse/makerbot/internal/metrics"
	"github.com/quantpulse/makerbot/internal/ratelimit"
)

const (
	// DefaultOrderCapPerMinute bounds order mutations per user per exchange
	// when the caller does not supply its own cap.
	DefaultOrderCapPerMinute = 30

	// balanceTTL is how long a normalized balance is served from cache to
	// absorb bursts of reads.
	balanceTTL = 10 * time.Second
)

// Gateway resolves per-user connectors, applies the token-bucket rate limit
// to order mutations, and normalizes raw connector payloads.
type Gateway struct {
	pool     *exchange.Pool
	limiter  *ratelimit.Limiter
	balances domain.BalanceCache
	execLog  domain.ExecutionLogStore
	logger   *slog.Logger
	orderCap int
}

// New creates a Gateway. balances may be nil to disable balance caching;
// execLog may be nil when no audit trail is wanted (tests).
func New(
	pool *exchange.Pool,
	limiter *ratelimit.Limiter,
	balances domain.BalanceCache,
	execLog domain.ExecutionLogStore,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		pool:     pool,
		limiter:  limiter,
		balances: balances,
		execLog:  execLog,
		logger:   logger.With(slog.String("component", "gateway")),
		orderCap: DefaultOrderCapPerMinute,
	}
}

// WithOrderCap overrides the per-minute cap applied to order mutations.
func (g *Gateway) WithOrderCap(capacityPerMinute int) *Gateway {
	if capacityPerMinute > 0 {
		g.orderCap = capacityPerMinute
	}
	return g
}

// allow consumes one rate-limit token for the (uid, exchange, operation)
// key, returning ErrRateLimited when the bucket is empty. Callers fail fast;
// the limiter never queues or blocks.
func (g *Gateway) allow(uid, exch, operation string) error {
	key := uid + ":" + exch + ":" + operation
	if g.limiter.TryConsume(key, g.orderCap) {
		return nil
	}
	metrics.RateLimitDeniedTotal.WithLabelValues(uid, exch, operation).Inc()
	g.logger.Warn("order operation rate limited",
		slog.String("uid", uid),
		slog.String("exchange", exch),
		slog.String("operation", operation),
	)
	return fmt.Errorf("gateway: %s %s for %s: %w", operation, exch, uid, domain.ErrRateLimited)
}

// PlaceOrder submits an order through the user's active connector after the
// rate gate. It implements the order-placement collaborator consumed by the
// market-making loop and any other order-submitting path.
func (g *Gateway) PlaceOrder(ctx context.Context, uid string, req domain.OrderRequest) (domain.Order, error) {
	conn, err := g.pool.Resolve(ctx, uid)
	if err != nil {
		return domain.Order{}, err
	}
	if err := g.allow(uid, conn.Name(), "order"); err != nil {
		return domain.Order{}, err
	}
	order, err := conn.PlaceOrder(ctx, req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("gateway: place order for %s: %w", uid, err)
	}
	return order, nil
}

// CancelOrder cancels an order through the user's active connector after the
// rate gate. Cancelling an already-gone order is success, not an error.
func (g *Gateway) CancelOrder(ctx context.Context, uid, symbol, orderID string) error {
	conn, err := g.pool.Resolve(ctx, uid)
	if err != nil {
		return err
	}
	if err := g.allow(uid, conn.Name(), "cancel"); err != nil {
		return err
	}
	if err := conn.CancelOrder(ctx, symbol, orderID); err != nil {
		return fmt.Errorf("gateway: cancel order %s for %s: %w", orderID, uid, err)
	}
	return nil
}

// GetBalance returns the user's normalized balance, served from the cache
// within its TTL.
func (g *Gateway) GetBalance(ctx context.Context, uid string) (domain.Balance, error) {
	if g.balances != nil {
		if bal, err := g.balances.Get(ctx, uid); err == nil {
			return bal, nil
		}
	}

	conn, err := g.pool.Resolve(ctx, uid)
	if err != nil {
		return domain.Balance{}, err
	}
	raw, err := conn.GetRawBalance(ctx)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("gateway: fetch balance for %s: %w", uid, err)
	}

	bal := NormalizeBalance(raw)
	bal.FetchedAt = time.Now().UTC()

	if g.balances != nil {
		if err := g.balances.Set(ctx, uid, bal, balanceTTL); err != nil {
			g.logger.Warn("balance cache set failed",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		}
	}
	return bal, nil
}

// GetPositions returns the user's normalized open positions for a symbol;
// pass an empty symbol for all positions. Zero-size rows are dropped.
func (g *Gateway) GetPositions(ctx context.Context, uid, symbol string) ([]domain.Position, error) {
	conn, err := g.pool.Resolve(ctx, uid)
	if err != nil {
		return nil, err
	}
	raws, err := conn.GetRawPositions(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch positions for %s: %w", uid, err)
	}

	positions := make([]domain.Position, 0, len(raws))
	for _, raw := range raws {
		pos, ok := NormalizePosition(raw)
		if !ok {
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// ClosePosition looks up the first open position for the symbol and issues a
// reduce-only market order on the opposite side for its full size. A nil
// result with nil error means there was no open position to close.
func (g *Gateway) ClosePosition(ctx context.Context, uid, symbol string) (*domain.Order, error) {
	positions, err := g.GetPositions(ctx, uid, symbol)
	if err != nil {
		return nil, err
	}

	var target *domain.Position
	for i := range positions {
		if positions[i].Symbol == symbol {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return nil, nil
	}

	order, err := g.PlaceOrder(ctx, uid, domain.OrderRequest{
		Symbol:        symbol,
		Side:          target.Side.Opposite(),
		Type:          domain.OrderTypeMarket,
		Quantity:      target.Size,
		ReduceOnly:    true,
		ClientOrderID: "close-" + uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}

	if g.execLog != nil {
		g.execLog.Append(ctx, uid, domain.ExecutionLogEntry{
			Action:   domain.ExecActionPositionClosed,
			Symbol:   symbol,
			OrderID:  order.OrderID,
			Price:    order.AvgPrice,
			Quantity: target.Size,
			Side:     target.Side.Opposite(),
			Status:   order.Status,
		})
	}
	g.logger.Info("position closed",
		slog.String("uid", uid),
		slog.String("symbol", symbol),
		slog.Float64("size", target.Size),
		slog.String("side", string(target.Side.Opposite())),
	)
	return &order, nil
}

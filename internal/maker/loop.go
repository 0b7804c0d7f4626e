package maker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/makerbot/internal/domain"
	"github.com/quantpulse/makerbot/internal/metrics"
)

// skewFraction of MaxPos at which quoting collapses to one side to reduce
// exposure.
const skewFraction = 0.3

// bookDepth is the orderbook depth requested each cycle; only top-of-book is
// used by the quoting decision.
const bookDepth = 5

// cancelTimeout bounds exchange-side cancellations issued outside a cycle
// (expiry timers, Stop).
const cancelTimeout = 5 * time.Second

// OrderPlacer submits orders on behalf of a user. It is implemented by the
// execution gateway, which applies the per-user rate limit before reaching
// the exchange.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, uid string, req domain.OrderRequest) (domain.Order, error)
}

// Loop is the per-user market-making control loop. On a fixed interval it
// reads the user's settings, fetches top-of-book, cancels quotes the market
// has moved against, and re-quotes one or both sides according to inventory
// skew. Fills arrive asynchronously through OnOrderUpdate.
//
// A Loop runs at most one cycle at a time: ticks are consumed sequentially
// by a single goroutine, so a slow cycle delays (never overlaps) the next.
type Loop struct {
	uid       string
	connector domain.ExchangeConnector
	placer    OrderPlacer
	settings  domain.SettingsStore
	execLog   domain.ExecutionLogStore
	broadcast domain.BroadcastSink
	tracker   *Tracker
	counter   *DailyCounter
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	symbol  string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop creates a Loop for one user. The broadcast sink may be nil; all
// other collaborators are required by Start.
func NewLoop(
	uid string,
	connector domain.ExchangeConnector,
	placer OrderPlacer,
	settings domain.SettingsStore,
	execLog domain.ExecutionLogStore,
	broadcast domain.BroadcastSink,
	logger *slog.Logger,
) *Loop {
	return &Loop{
		uid:       uid,
		connector: connector,
		placer:    placer,
		settings:  settings,
		execLog:   execLog,
		broadcast: broadcast,
		tracker:   NewTracker(),
		counter:   NewDailyCounter(),
		logger: logger.With(
			slog.String("component", "maker_loop"),
			slog.String("uid", uid),
		),
	}
}

// Tracker exposes the loop's order lifecycle tracker.
func (l *Loop) Tracker() *Tracker { return l.tracker }

// Counter exposes the loop's daily trade counter.
func (l *Loop) Counter() *DailyCounter { return l.counter }

// Running reports whether the loop is currently scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Start validates collaborators, runs one cycle immediately, and then runs a
// cycle every interval until Stop. A second Start on a running loop rejects
// with ErrLoopRunning rather than silently creating a second schedule.
func (l *Loop) Start(ctx context.Context, symbol string, interval time.Duration) error {
	if l.uid == "" || l.connector == nil || l.placer == nil || l.settings == nil || l.execLog == nil {
		return fmt.Errorf("maker: start: %w", domain.ErrMissingCollaborator)
	}
	if symbol == "" {
		return fmt.Errorf("maker: start: symbol is required")
	}
	if interval <= 0 {
		return fmt.Errorf("maker: start: interval must be positive, got %v", interval)
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("maker: start %s: %w", symbol, domain.ErrLoopRunning)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.running = true
	l.symbol = symbol
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	l.logger.Info("loop started",
		slog.String("symbol", symbol),
		slog.Duration("interval", interval),
	)
	l.publish(loopCtx, domain.LoopEvent{Type: domain.EventLoopStarted, Symbol: symbol})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		l.runCycle(loopCtx, symbol)
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				l.runCycle(loopCtx, symbol)
			}
		}
	}()
	return nil
}

// Stop cancels the recurring schedule, waits for any in-flight cycle, and
// best-effort cancels every tracked pending order, tolerating individual
// cancel failures. It is idempotent; stopping a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	symbol := l.symbol
	cancel := l.cancel
	done := l.done
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()

	cancel()
	<-done

	ctx, cancelCtx := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancelCtx()

	for _, po := range l.tracker.RemoveAll() {
		if err := l.connector.CancelOrder(ctx, po.Symbol, po.OrderID); err != nil {
			l.logger.Warn("cancel on stop failed",
				slog.String("order_id", po.OrderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		l.logCancel(ctx, po, "loop stopped")
	}

	l.logger.Info("loop stopped", slog.String("symbol", symbol))
	l.publish(ctx, domain.LoopEvent{Type: domain.EventLoopStopped, Symbol: symbol})
}

// OnOrderUpdate consumes an asynchronous order-status event from the fill
// notification channel. Confirmed fills move inventory by the signed filled
// quantity; only a terminal FILLED state removes the order from the pending
// set (partial fills remain tracked until terminal).
func (l *Loop) OnOrderUpdate(update domain.OrderUpdate) {
	if update.Status != domain.OrderStatusFilled && update.Status != domain.OrderStatusPartiallyFilled {
		return
	}

	terminal := update.Status == domain.OrderStatusFilled
	po, ok := l.tracker.ApplyFill(update.OrderID, update.FilledQty, update.Side, terminal)
	if !ok {
		return
	}

	metrics.FillsTotal.WithLabelValues(l.uid, po.Symbol, string(update.Side)).Inc()
	inv := l.tracker.Inventory()
	metrics.Inventory.WithLabelValues(l.uid, po.Symbol).Set(inv)

	l.logger.Info("fill applied",
		slog.String("order_id", update.OrderID),
		slog.String("side", string(update.Side)),
		slog.Float64("qty", update.FilledQty),
		slog.Float64("inventory", inv),
		slog.Bool("terminal", terminal),
	)

	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	l.execLog.Append(ctx, l.uid, domain.ExecutionLogEntry{
		Action:   domain.ExecActionFilled,
		Symbol:   po.Symbol,
		OrderID:  update.OrderID,
		Price:    update.AvgPrice,
		Quantity: update.FilledQty,
		Side:     update.Side,
		Status:   update.Status,
	})
	l.publish(ctx, domain.LoopEvent{
		Type:      domain.EventOrderFilled,
		Symbol:    po.Symbol,
		Side:      update.Side,
		Price:     update.AvgPrice,
		Quantity:  update.FilledQty,
		OrderID:   update.OrderID,
		Inventory: inv,
	})
}

// runCycle executes one quoting cycle. Any error aborts only this cycle; the
// next scheduled tick retries naturally.
func (l *Loop) runCycle(ctx context.Context, symbol string) {
	st, err := l.settings.GetSettings(ctx, l.uid)
	if err != nil {
		l.cycleError(symbol, "settings", err)
		return
	}
	st = st.Normalize()
	if !st.Enabled {
		return
	}
	metrics.CyclesTotal.WithLabelValues(l.uid, symbol).Inc()

	// Roll the daily counter on UTC date change before evaluating the cap.
	capped := l.counter.Capped(st.MaxTradesPerDay)

	snap, err := l.connector.GetOrderbook(ctx, symbol, bookDepth)
	if err != nil {
		l.cycleError(symbol, "orderbook", err)
		return
	}
	top, ok := snap.Top()
	if !ok {
		l.cycleError(symbol, "orderbook", domain.ErrEmptyBook)
		return
	}

	mid := top.Mid()
	if spread := top.SpreadPct(); spread < st.MinSpreadPct {
		l.logger.Debug("spread below threshold",
			slog.Float64("spread_pct", spread),
			slog.Float64("min_spread_pct", st.MinSpreadPct),
		)
		return
	}

	// Trim stale risk before quoting; this runs even when the daily cap has
	// been reached.
	l.cancelAdverse(ctx, mid, st.AdversePct)

	if capped {
		l.logger.Debug("daily trade cap reached",
			slog.Int("count", l.counter.Count()),
			slog.Int("max", st.MaxTradesPerDay),
		)
		return
	}

	for _, side := range l.sidesToQuote(st.MaxPos) {
		var price float64
		if side == domain.OrderSideBuy {
			price = top.BestBid * (1 - st.AdversePct/2)
		} else {
			price = top.BestAsk * (1 + st.AdversePct/2)
		}
		l.placeQuote(ctx, st, symbol, side, price)
	}
}

// sidesToQuote selects which sides to quote from the inventory skew: both
// sides while |inventory| < skewFraction*maxPos, otherwise only the side
// that reduces exposure.
func (l *Loop) sidesToQuote(maxPos float64) []domain.OrderSide {
	inv := l.tracker.Inventory()
	threshold := skewFraction * maxPos
	switch {
	case inv >= threshold:
		return []domain.OrderSide{domain.OrderSideSell}
	case inv <= -threshold:
		return []domain.OrderSide{domain.OrderSideBuy}
	default:
		return []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell}
	}
}

// cancelAdverse cancels every pending order whose price move against it
// exceeds adversePct. Individual cancel failures are logged and skipped.
func (l *Loop) cancelAdverse(ctx context.Context, mid, adversePct float64) {
	for _, adv := range l.tracker.ListAdverse(mid, adversePct) {
		po, ok := l.tracker.Remove(adv.Order.OrderID)
		if !ok {
			// Lost the race against a fill or expiry; nothing to do.
			continue
		}
		if err := l.connector.CancelOrder(ctx, po.Symbol, po.OrderID); err != nil {
			l.logger.Warn("adverse cancel failed",
				slog.String("order_id", po.OrderID),
				slog.String("error", err.Error()),
			)
			continue
		}
		reason := fmt.Sprintf("adverse move %.6f against %s @ %v", adv.Move, po.Side, po.Price)
		metrics.OrdersCanceledTotal.WithLabelValues(l.uid, po.Symbol, "adverse").Inc()
		l.logCancel(ctx, po, reason)
		l.publish(ctx, domain.LoopEvent{
			Type:    domain.EventOrderCanceled,
			Symbol:  po.Symbol,
			Side:    po.Side,
			Price:   po.Price,
			OrderID: po.OrderID,
			Reason:  reason,
		})
	}
}

// placeQuote submits one maker quote and, on success, tracks it with a
// cancelAfter expiry, bumps the daily counter, logs, and broadcasts.
func (l *Loop) placeQuote(ctx context.Context, st domain.MakerSettings, symbol string, side domain.OrderSide, price float64) {
	req := domain.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          domain.OrderTypeLimit,
		Quantity:      st.QuoteSize,
		Price:         price,
		PostOnly:      true,
		ClientOrderID: "mm-" + uuid.NewString(),
	}

	order, err := l.placer.PlaceOrder(ctx, l.uid, req)
	if err != nil {
		l.cycleError(symbol, "place", err)
		return
	}

	po := PendingOrder{
		OrderID:  order.OrderID,
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: st.QuoteSize,
		PlacedAt: time.Now().UTC(),
	}
	cancelAfter := st.CancelAfter
	l.tracker.Add(po, cancelAfter, func(expired PendingOrder) {
		l.expireOrder(expired, cancelAfter)
	})
	l.counter.Increment()

	action := domain.ExecActionBidPlaced
	if side == domain.OrderSideSell {
		action = domain.ExecActionAskPlaced
	}
	metrics.OrdersPlacedTotal.WithLabelValues(l.uid, symbol, string(side)).Inc()
	l.logger.Info("quote placed",
		slog.String("order_id", po.OrderID),
		slog.String("side", string(side)),
		slog.Float64("price", price),
		slog.Float64("qty", st.QuoteSize),
	)
	l.execLog.Append(ctx, l.uid, domain.ExecutionLogEntry{
		Action:   action,
		Symbol:   symbol,
		OrderID:  po.OrderID,
		Price:    price,
		Quantity: st.QuoteSize,
		Side:     side,
		Status:   order.Status,
	})
	l.publish(ctx, domain.LoopEvent{
		Type:     domain.EventQuotePlaced,
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: st.QuoteSize,
		OrderID:  po.OrderID,
	})
}

// expireOrder is the expiry-timer path. The order has already been removed
// from the pending set by the tracker, so a concurrent fill or adverse
// cancel cannot see it again.
func (l *Loop) expireOrder(po PendingOrder, after time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()

	if err := l.connector.CancelOrder(ctx, po.Symbol, po.OrderID); err != nil {
		l.logger.Warn("expiry cancel failed",
			slog.String("order_id", po.OrderID),
			slog.String("error", err.Error()),
		)
		return
	}
	reason := fmt.Sprintf("auto-canceled after %dms", after.Milliseconds())
	metrics.OrdersCanceledTotal.WithLabelValues(l.uid, po.Symbol, "expiry").Inc()
	l.logCancel(ctx, po, reason)
	l.publish(ctx, domain.LoopEvent{
		Type:    domain.EventOrderCanceled,
		Symbol:  po.Symbol,
		Side:    po.Side,
		Price:   po.Price,
		OrderID: po.OrderID,
		Reason:  reason,
	})
}

func (l *Loop) logCancel(ctx context.Context, po PendingOrder, reason string) {
	l.execLog.Append(ctx, l.uid, domain.ExecutionLogEntry{
		Action:   domain.ExecActionCanceled,
		Symbol:   po.Symbol,
		OrderID:  po.OrderID,
		Price:    po.Price,
		Quantity: po.Quantity,
		Side:     po.Side,
		Reason:   reason,
		Status:   domain.OrderStatusCanceled,
	})
}

func (l *Loop) cycleError(symbol, stage string, err error) {
	metrics.CycleErrorsTotal.WithLabelValues(l.uid, symbol, stage).Inc()
	l.logger.Error("cycle aborted",
		slog.String("symbol", symbol),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

func (l *Loop) publish(ctx context.Context, ev domain.LoopEvent) {
	if l.broadcast == nil {
		return
	}
	ev.UID = l.uid
	ev.Timestamp = time.Now().UTC()
	l.broadcast.Publish(ctx, l.uid, ev)
}

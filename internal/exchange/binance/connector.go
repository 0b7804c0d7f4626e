// Package binance implements domain.ExchangeConnector for Binance USDT-M
// futures using the adshao/go-binance client.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"github.com/quantpulse/makerbot/internal/domain"
)

const (
	// restBurst and restPerSecond throttle outbound REST calls well under
	// Binance's weight limits.
	restPerSecond = 10
	restBurst     = 20

	// listenKeyKeepalive is how often the user-data listen key is renewed;
	// Binance expires keys after 60 minutes without a keepalive.
	listenKeyKeepalive = 30 * time.Minute

	// streamReconnectDelay is the pause before a dropped user-data stream
	// is reopened with a fresh listen key.
	streamReconnectDelay = 5 * time.Second
)

// Connector is a Binance futures connector bound to one user's credentials.
type Connector struct {
	client  *futures.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	streamStop     func()
	reconnectDelay time.Duration

	// Stream entry points, replaceable in tests.
	startStream func(ctx context.Context) (string, error)
	serveStream func(listenKey string, h func(*futures.WsUserDataEvent), eh func(error)) (chan struct{}, chan struct{}, error)
}

// New creates a Connector from the given credentials. Testnet credentials
// route to the Binance futures testnet.
func New(_ context.Context, creds domain.Credentials, logger *slog.Logger) (domain.ExchangeConnector, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, fmt.Errorf("binance: api key and secret are required")
	}
	futures.UseTestnet = creds.Testnet
	c := &Connector{
		client:         futures.NewClient(creds.APIKey, creds.APISecret),
		limiter:        rate.NewLimiter(rate.Limit(restPerSecond), restBurst),
		logger:         logger.With(slog.String("connector", "binance")),
		reconnectDelay: streamReconnectDelay,
	}
	c.startStream = func(ctx context.Context) (string, error) {
		return c.client.NewStartUserStreamService().Do(ctx)
	}
	c.serveStream = func(listenKey string, h func(*futures.WsUserDataEvent), eh func(error)) (chan struct{}, chan struct{}, error) {
		return futures.WsUserDataServe(listenKey, h, eh)
	}
	return c, nil
}

// Name returns "binance".
func (c *Connector) Name() string { return "binance" }

func (c *Connector) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("binance: rest throttle: %w", err)
	}
	return nil
}

// GetOrderbook fetches a depth snapshot. Bids come back sorted descending
// and asks ascending, matching the domain snapshot contract.
func (c *Connector) GetOrderbook(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	if err := c.wait(ctx); err != nil {
		return domain.OrderbookSnapshot{}, err
	}
	resp, err := c.client.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}

	snap := domain.OrderbookSnapshot{
		Symbol:    symbol,
		Bids:      make([]domain.PriceLevel, 0, len(resp.Bids)),
		Asks:      make([]domain.PriceLevel, 0, len(resp.Asks)),
		Timestamp: time.Now().UTC(),
	}
	for _, lvl := range resp.Bids {
		price, qty, err := lvl.Parse()
		if err != nil {
			continue
		}
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: price, Size: qty})
	}
	for _, lvl := range resp.Asks {
		price, qty, err := lvl.Parse()
		if err != nil {
			continue
		}
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: price, Size: qty})
	}
	return snap, nil
}

// PlaceOrder submits a limit or market order. PostOnly limit orders use GTX
// time-in-force so they are rejected rather than crossing the book.
func (c *Connector) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	if err := c.wait(ctx); err != nil {
		return domain.Order{}, err
	}

	svc := c.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(formatFloat(req.Quantity))

	switch req.Type {
	case domain.OrderTypeMarket:
		svc = svc.Type(futures.OrderTypeMarket)
	default:
		tif := futures.TimeInForceTypeGTC
		if req.PostOnly {
			tif = futures.TimeInForceTypeGTX
		}
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(tif).
			Price(formatFloat(req.Price))
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: place %s %s: %w", req.Side, req.Symbol, err)
	}

	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	executed, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	return domain.Order{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Quantity:      req.Quantity,
		ExecutedQty:   executed,
		AvgPrice:      avgPrice,
		Status:        domain.OrderStatus(resp.Status),
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CancelOrder cancels a resting order. Binance error -2011 ("Unknown
// order") means the order is already gone, which is success here.
func (c *Connector) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: cancel %s: bad order id %q", symbol, orderID)
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = c.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "-2011") || strings.Contains(err.Error(), "Unknown order") {
			return nil
		}
		return fmt.Errorf("binance: cancel %s %s: %w", symbol, orderID, err)
	}
	return nil
}

// GetRawBalance returns the futures account USDT totals as a loosely typed
// payload for the gateway's normalization layer.
func (c *Connector) GetRawBalance(ctx context.Context) (map[string]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: account: %w", err)
	}
	return map[string]any{
		"totalWalletBalance": account.TotalWalletBalance,
		"totalMarginBalance": account.TotalMarginBalance,
		"availableBalance":   account.AvailableBalance,
	}, nil
}

// GetRawPositions returns position-risk rows as loosely typed payloads.
// Symbol may be empty for all symbols; flat rows are included and filtered
// by the gateway.
func (c *Connector) GetRawPositions(ctx context.Context, symbol string) ([]map[string]any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	svc := c.client.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	risks, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: position risk %s: %w", symbol, err)
	}

	out := make([]map[string]any, 0, len(risks))
	for _, pos := range risks {
		out = append(out, map[string]any{
			"symbol":      pos.Symbol,
			"positionAmt": pos.PositionAmt,
			"entryPrice":  pos.EntryPrice,
			"leverage":    pos.Leverage,
		})
	}
	return out, nil
}

// StreamOrderUpdates opens the user-data stream and forwards order-trade
// updates to handler until ctx is cancelled. The listen key is kept alive in
// the background; when the stream drops it is reopened with a fresh key.
// Only the initial connection surfaces an error to the caller.
func (c *Connector) StreamOrderUpdates(ctx context.Context, handler func(domain.OrderUpdate)) error {
	wsHandler := func(event *futures.WsUserDataEvent) {
		if event.Event != futures.UserDataEventTypeOrderTradeUpdate {
			return
		}
		u := event.OrderTradeUpdate
		filled, _ := strconv.ParseFloat(u.LastFilledQty, 64)
		avgPrice, _ := strconv.ParseFloat(u.AveragePrice, 64)
		handler(domain.OrderUpdate{
			OrderID:   strconv.FormatInt(u.ID, 10),
			Symbol:    u.Symbol,
			Status:    domain.OrderStatus(u.Status),
			Side:      domain.OrderSide(u.Side),
			FilledQty: filled,
			AvgPrice:  avgPrice,
			Timestamp: time.UnixMilli(event.Time),
		})
	}
	errHandler := func(err error) {
		c.logger.Warn("user stream error", slog.String("error", err.Error()))
	}

	streamCtx, cancel := context.WithCancel(ctx)

	listenKey, err := c.startStream(streamCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("binance: start user stream: %w", err)
	}
	doneC, stopC, err := c.serveStream(listenKey, wsHandler, errHandler)
	if err != nil {
		cancel()
		return fmt.Errorf("binance: user stream serve: %w", err)
	}
	c.streamStop = cancel

	go func() {
		for {
			if dropped := c.superviseStream(streamCtx, listenKey, doneC, stopC); !dropped {
				return
			}
			listenKey, doneC, stopC = c.reconnectStream(streamCtx, wsHandler, errHandler)
			if doneC == nil {
				return
			}
		}
	}()
	return nil
}

// superviseStream keeps the listen key alive until the stream ends. It
// reports true when the stream dropped and should be reopened, false when
// ctx ended.
func (c *Connector) superviseStream(ctx context.Context, listenKey string, doneC, stopC chan struct{}) bool {
	ticker := time.NewTicker(listenKeyKeepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(stopC)
			return false
		case <-doneC:
			c.logger.Warn("user stream dropped, reconnecting")
			return true
		case <-ticker.C:
			if err := c.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				c.logger.Warn("listen key keepalive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// reconnectStream retries the user-data stream with a fresh listen key until
// it connects or ctx ends, in which case all returns are zero.
func (c *Connector) reconnectStream(ctx context.Context, wsHandler func(*futures.WsUserDataEvent), errHandler func(error)) (string, chan struct{}, chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return "", nil, nil
		case <-time.After(c.reconnectDelay):
		}

		listenKey, err := c.startStream(ctx)
		if err != nil {
			c.logger.Warn("user stream restart failed", slog.String("error", err.Error()))
			continue
		}
		doneC, stopC, err := c.serveStream(listenKey, wsHandler, errHandler)
		if err != nil {
			c.logger.Warn("user stream reconnect failed", slog.String("error", err.Error()))
			continue
		}
		c.logger.Info("user stream reconnected")
		return listenKey, doneC, stopC
	}
}

// Close stops the user-data stream if one is open.
func (c *Connector) Close() error {
	if c.streamStop != nil {
		c.streamStop()
		c.streamStop = nil
	}
	return nil
}

// formatFloat renders prices and quantities without scientific notation.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
	"github.com/quantpulse/makerbot/internal/exchange"
	"github.com/quantpulse/makerbot/internal/ratelimit"
)

type fakeExchConn struct {
	mu           sync.Mutex
	placed       []domain.OrderRequest
	canceled     []string
	balanceRaw   map[string]any
	balanceCalls int
	positionsRaw []map[string]any
	nextID       int
}

func (c *fakeExchConn) Name() string { return "fake" }

func (c *fakeExchConn) GetOrderbook(context.Context, string, int) (domain.OrderbookSnapshot, error) {
	return domain.OrderbookSnapshot{}, nil
}

func (c *fakeExchConn) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.placed = append(c.placed, req)
	return domain.Order{
		OrderID:       fmt.Sprintf("ord-%d", c.nextID),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Status:        domain.OrderStatusNew,
	}, nil
}

func (c *fakeExchConn) CancelOrder(_ context.Context, _ string, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = append(c.canceled, orderID)
	return nil
}

func (c *fakeExchConn) GetRawBalance(context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceCalls++
	return c.balanceRaw, nil
}

func (c *fakeExchConn) GetRawPositions(context.Context, string) ([]map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionsRaw, nil
}

func (c *fakeExchConn) Close() error { return nil }

type fakeCredStore struct{ known map[string]bool }

func (s *fakeCredStore) GetCredentials(_ context.Context, uid string) (domain.Credentials, error) {
	if !s.known[uid] {
		return domain.Credentials{}, domain.ErrNotFound
	}
	return domain.Credentials{Exchange: "fake", APIKey: "k", APISecret: "s"}, nil
}

type captureLog struct {
	mu      sync.Mutex
	entries []domain.ExecutionLogEntry
}

func (l *captureLog) Append(_ context.Context, uid string, entry domain.ExecutionLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.UID = uid
	l.entries = append(l.entries, entry)
}

func (l *captureLog) List(context.Context, string, domain.ListOpts) ([]domain.ExecutionLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ExecutionLogEntry(nil), l.entries...), nil
}

func (l *captureLog) ListBefore(context.Context, time.Time) ([]domain.ExecutionLogEntry, error) {
	return l.List(context.Background(), "", domain.ListOpts{})
}

type gatewayFixture struct {
	gw      *Gateway
	conn    *fakeExchConn
	cache   *MemBalanceCache
	execLog *captureLog
}

func newGatewayFixture(withCache bool) *gatewayFixture {
	f := &gatewayFixture{
		conn:    &fakeExchConn{balanceRaw: map[string]any{}},
		execLog: &captureLog{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := exchange.NewFactory()
	factory.Register("fake", func(context.Context, domain.Credentials, *slog.Logger) (domain.ExchangeConnector, error) {
		return f.conn, nil
	})
	pool := exchange.NewPool(factory, &fakeCredStore{known: map[string]bool{"u1": true}}, logger)

	var cache domain.BalanceCache
	if withCache {
		f.cache = NewMemBalanceCache()
		cache = f.cache
	}
	f.gw = New(pool, ratelimit.New(), cache, f.execLog, logger)
	return f
}

func TestPlaceOrderPassesThrough(t *testing.T) {
	f := newGatewayFixture(false)

	order, err := f.gw.PlaceOrder(context.Background(), "u1", domain.OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     domain.OrderSideBuy,
		Type:     domain.OrderTypeLimit,
		Quantity: 0.5,
		Price:    100,
	})
	require.NoError(t, err)
	require.Equal(t, "ord-1", order.OrderID)
	require.Len(t, f.conn.placed, 1)
}

func TestPlaceOrderRateLimited(t *testing.T) {
	f := newGatewayFixture(false)
	f.gw.WithOrderCap(2)

	req := domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 0.1}
	_, err := f.gw.PlaceOrder(context.Background(), "u1", req)
	require.NoError(t, err)
	_, err = f.gw.PlaceOrder(context.Background(), "u1", req)
	require.NoError(t, err)

	_, err = f.gw.PlaceOrder(context.Background(), "u1", req)
	require.ErrorIs(t, err, domain.ErrRateLimited)
	require.Len(t, f.conn.placed, 2, "a denied order must never reach the exchange")
}

func TestCancelUsesSeparateBucket(t *testing.T) {
	f := newGatewayFixture(false)
	f.gw.WithOrderCap(1)

	req := domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 0.1}
	_, err := f.gw.PlaceOrder(context.Background(), "u1", req)
	require.NoError(t, err)
	_, err = f.gw.PlaceOrder(context.Background(), "u1", req)
	require.ErrorIs(t, err, domain.ErrRateLimited)

	// The order bucket is exhausted; cancels draw from their own bucket.
	require.NoError(t, f.gw.CancelOrder(context.Background(), "u1", "BTCUSDT", "ord-1"))
	err = f.gw.CancelOrder(context.Background(), "u1", "BTCUSDT", "ord-1")
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestGetBalanceServedFromCacheWithinTTL(t *testing.T) {
	f := newGatewayFixture(true)
	f.conn.balanceRaw = map[string]any{
		"totalWalletBalance": "1250.5",
		"availableBalance":   "1000.0",
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.cache.now = func() time.Time { return now }

	bal, err := f.gw.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	require.InDelta(t, 1250.5, bal.TotalUSDT, 1e-9)
	require.InDelta(t, 1000.0, bal.AvailableUSDT, 1e-9)
	require.False(t, bal.FetchedAt.IsZero())
	require.Equal(t, 1, f.conn.balanceCalls)

	// A second read inside the TTL never touches the exchange.
	again, err := f.gw.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, bal, again)
	require.Equal(t, 1, f.conn.balanceCalls)

	// Past the TTL the balance is refetched.
	now = now.Add(11 * time.Second)
	_, err = f.gw.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 2, f.conn.balanceCalls)
}

func TestGetBalanceWithoutCacheAlwaysFetches(t *testing.T) {
	f := newGatewayFixture(false)
	f.conn.balanceRaw = map[string]any{"totalWalletBalance": 10.0}

	for i := 0; i < 3; i++ {
		_, err := f.gw.GetBalance(context.Background(), "u1")
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.conn.balanceCalls)
}

func TestGetPositionsDropsUnusableRows(t *testing.T) {
	f := newGatewayFixture(false)
	f.conn.positionsRaw = []map[string]any{
		{"symbol": "BTCUSDT", "positionAmt": "0.4", "entryPrice": "65000"},
		{"symbol": "ETHUSDT", "positionAmt": "0"}, // flat placeholder
		{"positionAmt": "1.0"},                    // no symbol
	}

	positions, err := f.gw.GetPositions(context.Background(), "u1", "")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "BTCUSDT", positions[0].Symbol)
	require.Equal(t, domain.OrderSideBuy, positions[0].Side)
}

func TestClosePositionFlatIsNoop(t *testing.T) {
	f := newGatewayFixture(false)
	f.conn.positionsRaw = nil

	order, err := f.gw.ClosePosition(context.Background(), "u1", "BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, order)
	require.Empty(t, f.conn.placed)
}

func TestClosePositionReduceOnlyOpposite(t *testing.T) {
	f := newGatewayFixture(false)
	f.conn.positionsRaw = []map[string]any{
		{"symbol": "BTCUSDT", "positionAmt": "0.4", "entryPrice": "65000"},
	}

	order, err := f.gw.ClosePosition(context.Background(), "u1", "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, order)

	require.Len(t, f.conn.placed, 1)
	req := f.conn.placed[0]
	require.Equal(t, domain.OrderSideSell, req.Side, "a long closes with a sell")
	require.Equal(t, domain.OrderTypeMarket, req.Type)
	require.True(t, req.ReduceOnly)
	require.InDelta(t, 0.4, req.Quantity, 1e-9)
	require.True(t, strings.HasPrefix(req.ClientOrderID, "close-"))

	require.Len(t, f.execLog.entries, 1)
	entry := f.execLog.entries[0]
	require.Equal(t, domain.ExecActionPositionClosed, entry.Action)
	require.Equal(t, domain.OrderSideSell, entry.Side)
	require.InDelta(t, 0.4, entry.Quantity, 1e-9)
}

func TestClosePositionShortClosesWithBuy(t *testing.T) {
	f := newGatewayFixture(false)
	f.conn.positionsRaw = []map[string]any{
		{"symbol": "BTCUSDT", "positionAmt": "-0.25"},
	}

	order, err := f.gw.ClosePosition(context.Background(), "u1", "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, domain.OrderSideBuy, f.conn.placed[0].Side)
	require.InDelta(t, 0.25, f.conn.placed[0].Quantity, 1e-9)
}

func TestUnknownUserSurfacesNotFound(t *testing.T) {
	f := newGatewayFixture(false)

	_, err := f.gw.PlaceOrder(context.Background(), "stranger", domain.OrderRequest{Symbol: "BTCUSDT"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.gw.GetBalance(context.Background(), "stranger")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

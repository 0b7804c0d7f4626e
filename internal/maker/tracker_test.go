package maker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
)

func testOrder(id string, side domain.OrderSide, price float64) PendingOrder {
	return PendingOrder{
		OrderID:  id,
		Symbol:   "BTCUSDT",
		Side:     side,
		Price:    price,
		Quantity: 0.5,
		PlacedAt: time.Now().UTC(),
	}
}

func TestTrackerAddRemove(t *testing.T) {
	tr := NewTracker()
	tr.Add(testOrder("o1", domain.OrderSideBuy, 100), 0, nil)
	require.Equal(t, 1, tr.Len())

	po, ok := tr.Remove("o1")
	require.True(t, ok)
	require.Equal(t, "o1", po.OrderID)
	require.Equal(t, 0, tr.Len())

	// A second removal of the same id is a no-op, not an error.
	_, ok = tr.Remove("o1")
	require.False(t, ok)
	_, ok = tr.Remove("never-existed")
	require.False(t, ok)
}

func TestTrackerExpiryFires(t *testing.T) {
	tr := NewTracker()

	var (
		mu      sync.Mutex
		expired []PendingOrder
	)
	tr.Add(testOrder("o1", domain.OrderSideBuy, 100), 20*time.Millisecond, func(po PendingOrder) {
		mu.Lock()
		expired = append(expired, po)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(expired) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, "o1", expired[0].OrderID)
	mu.Unlock()
	require.Equal(t, 0, tr.Len())
}

func TestTrackerRemoveBeatsExpiry(t *testing.T) {
	tr := NewTracker()

	var fired sync.Map
	tr.Add(testOrder("o1", domain.OrderSideBuy, 100), 20*time.Millisecond, func(po PendingOrder) {
		fired.Store(po.OrderID, true)
	})

	_, ok := tr.Remove("o1")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, raced := fired.Load("o1")
	require.False(t, raced, "expiry callback ran after the order was already removed")
}

func TestTrackerListAdverse(t *testing.T) {
	tr := NewTracker()
	tr.Add(testOrder("buy-far", domain.OrderSideBuy, 100), 0, nil)  // mid 100.2: move 0.002
	tr.Add(testOrder("sell-far", domain.OrderSideSell, 100.4), 0, nil)
	tr.Add(testOrder("buy-near", domain.OrderSideBuy, 100.19), 0, nil)

	adv := tr.ListAdverse(100.2, 0.001)
	require.Len(t, adv, 2)

	moves := make(map[string]float64, len(adv))
	for _, a := range adv {
		moves[a.Order.OrderID] = a.Move
	}
	require.InDelta(t, 0.002, moves["buy-far"], 1e-9)
	require.InDelta(t, (100.4-100.2)/100.4, moves["sell-far"], 1e-9)
}

func TestTrackerListAdverseStrictThreshold(t *testing.T) {
	tr := NewTracker()
	// mid 100.1 against a buy at 100 is a move of exactly 0.001.
	tr.Add(testOrder("o1", domain.OrderSideBuy, 100), 0, nil)
	require.Empty(t, tr.ListAdverse(100.1, 0.001))
	require.Len(t, tr.ListAdverse(100.1, 0.0009), 1)
}

func TestTrackerListAdverseSkipsZeroPrice(t *testing.T) {
	tr := NewTracker()
	tr.Add(testOrder("bad", domain.OrderSideBuy, 0), 0, nil)
	require.Empty(t, tr.ListAdverse(100, 0.001))
}

func TestTrackerApplyFill(t *testing.T) {
	tr := NewTracker()
	tr.Add(testOrder("b1", domain.OrderSideBuy, 100), 0, nil)
	tr.Add(testOrder("s1", domain.OrderSideSell, 101), 0, nil)

	// Partial fills move inventory but keep the order tracked.
	po, ok := tr.ApplyFill("b1", 0.2, domain.OrderSideBuy, false)
	require.True(t, ok)
	require.Equal(t, "b1", po.OrderID)
	require.InDelta(t, 0.2, tr.Inventory(), 1e-9)
	require.Equal(t, 2, tr.Len())

	// A terminal fill removes the order.
	_, ok = tr.ApplyFill("b1", 0.3, domain.OrderSideBuy, true)
	require.True(t, ok)
	require.InDelta(t, 0.5, tr.Inventory(), 1e-9)
	require.Equal(t, 1, tr.Len())

	// Sells subtract.
	_, ok = tr.ApplyFill("s1", 0.5, domain.OrderSideSell, true)
	require.True(t, ok)
	require.InDelta(t, 0.0, tr.Inventory(), 1e-9)
	require.Equal(t, 0, tr.Len())
}

func TestTrackerApplyFillUntrackedIgnored(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.ApplyFill("ghost", 1.0, domain.OrderSideBuy, true)
	require.False(t, ok)
	require.Zero(t, tr.Inventory())
}

func TestTrackerRemoveAll(t *testing.T) {
	tr := NewTracker()
	tr.Add(testOrder("o1", domain.OrderSideBuy, 100), time.Minute, func(PendingOrder) {})
	tr.Add(testOrder("o2", domain.OrderSideSell, 101), time.Minute, func(PendingOrder) {})
	tr.Add(testOrder("o3", domain.OrderSideBuy, 99), 0, nil)

	removed := tr.RemoveAll()
	require.Len(t, removed, 3)
	require.Equal(t, 0, tr.Len())
	require.Empty(t, tr.RemoveAll())
}

func TestTrackerPendingSnapshot(t *testing.T) {
	tr := NewTracker()
	tr.Add(testOrder("o1", domain.OrderSideBuy, 100), 0, nil)
	tr.Add(testOrder("o2", domain.OrderSideSell, 101), 0, nil)

	ids := make(map[string]bool)
	for _, po := range tr.Pending() {
		ids[po.OrderID] = true
	}
	require.True(t, ids["o1"])
	require.True(t, ids["o2"])
}

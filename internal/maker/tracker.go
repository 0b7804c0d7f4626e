// Package maker implements the per-user market-making control loop: resting
// order lifecycle tracking, signed inventory, daily trade-rate caps, and the
// interval-driven quoting cycle.
package maker

import (
	"sync"
	"time"

	"github.com/quantpulse/makerbot/internal/domain"
)

// PendingOrder is a resting quote tracked from placement until one of its
// three terminal transitions: expiry, adverse-move cancel, or full fill.
type PendingOrder struct {
	OrderID  string
	Symbol   string
	Side     domain.OrderSide
	Price    float64
	Quantity float64
	PlacedAt time.Time
}

// AdverseOrder pairs a pending order with the price move against it.
type AdverseOrder struct {
	Order PendingOrder
	Move  float64
}

// trackedOrder bundles the order with its armed expiry timer handle.
type trackedOrder struct {
	order  PendingOrder
	expiry *time.Timer
}

// Tracker owns one user's pending-order set, inventory value, and expiry
// bookkeeping. All three removal paths (tick adverse-cancel, expiry timer,
// fill notification) go through the same mutex, so removal is atomic and
// idempotent: whichever path removes an order first wins, and the others
// observe a no-op.
//
// Tracker is deliberately separate from the loop scheduler so it can be unit
// tested without timers or network calls.
type Tracker struct {
	mu        sync.Mutex
	pending   map[string]*trackedOrder
	inventory float64
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]*trackedOrder)}
}

// Add registers a pending order. When expireAfter > 0 and onExpire is
// non-nil, a single-shot expiry timer is armed; if it fires before the order
// has been removed by another path, the order is removed and onExpire is
// invoked with it. The timer runs on its own goroutine and synchronizes with
// every other removal path through Remove.
func (t *Tracker) Add(order PendingOrder, expireAfter time.Duration, onExpire func(PendingOrder)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &trackedOrder{order: order}
	t.pending[order.OrderID] = entry

	if expireAfter > 0 && onExpire != nil {
		id := order.OrderID
		entry.expiry = time.AfterFunc(expireAfter, func() {
			if po, ok := t.Remove(id); ok {
				onExpire(po)
			}
		})
	}
}

// Remove deletes the order and stops its expiry timer. It reports whether
// this call actually removed the order; removing a missing id is a no-op,
// not an error.
func (t *Tracker) Remove(orderID string) (PendingOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(orderID)
}

func (t *Tracker) removeLocked(orderID string) (PendingOrder, bool) {
	entry, ok := t.pending[orderID]
	if !ok {
		return PendingOrder{}, false
	}
	delete(t.pending, orderID)
	if entry.expiry != nil {
		entry.expiry.Stop()
	}
	return entry.order, true
}

// RemoveAll removes every pending order, stopping all timers, and returns
// the removed orders for best-effort exchange-side cancellation.
func (t *Tracker) RemoveAll() []PendingOrder {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PendingOrder, 0, len(t.pending))
	for id := range t.pending {
		if po, ok := t.removeLocked(id); ok {
			out = append(out, po)
		}
	}
	return out
}

// ListAdverse returns the pending orders whose price has moved against them
// by more than adversePct, together with the computed move. For a buy the
// move is (mid-price)/price; for a sell it is (price-mid)/price.
func (t *Tracker) ListAdverse(mid, adversePct float64) []AdverseOrder {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []AdverseOrder
	for _, entry := range t.pending {
		po := entry.order
		if po.Price <= 0 {
			continue
		}
		var move float64
		if po.Side == domain.OrderSideBuy {
			move = (mid - po.Price) / po.Price
		} else {
			move = (po.Price - mid) / po.Price
		}
		if move > adversePct {
			out = append(out, AdverseOrder{Order: po, Move: move})
		}
	}
	return out
}

// ApplyFill applies a confirmed fill to the inventory: buys add filledQty,
// sells subtract it. Inventory is never mutated speculatively at placement
// time. When terminal is true (the order is fully filled) the order is also
// removed and its expiry timer stopped, preventing a later spurious cancel.
// Fills for untracked orders are ignored entirely.
func (t *Tracker) ApplyFill(orderID string, filledQty float64, side domain.OrderSide, terminal bool) (PendingOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.pending[orderID]
	if !ok {
		return PendingOrder{}, false
	}

	if side == domain.OrderSideBuy {
		t.inventory += filledQty
	} else {
		t.inventory -= filledQty
	}

	if terminal {
		t.removeLocked(orderID)
	}
	return entry.order, true
}

// Inventory returns the signed net position accumulated from fills.
func (t *Tracker) Inventory() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inventory
}

// Pending returns a snapshot of the tracked orders.
func (t *Tracker) Pending() []PendingOrder {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PendingOrder, 0, len(t.pending))
	for _, entry := range t.pending {
		out = append(out, entry.order)
	}
	return out
}

// Len returns the number of tracked orders.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

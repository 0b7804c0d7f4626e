package domain

import "time"

// EventType identifies a broadcast event.
type EventType string

const (
	EventQuotePlaced   EventType = "quote_placed"
	EventOrderCanceled EventType = "order_canceled"
	EventOrderFilled   EventType = "order_filled"
	EventLoopStarted   EventType = "loop_started"
	EventLoopStopped   EventType = "loop_stopped"
)

// LoopEvent is a best-effort status event published to live channels while a
// market-making session runs.
type LoopEvent struct {
	Type      EventType `json:"type"`
	UID       string    `json:"uid"`
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side,omitempty"`
	Price     float64   `json:"price,omitempty"`
	Quantity  float64   `json:"quantity,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Inventory float64   `json:"inventory,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

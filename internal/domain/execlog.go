package domain

import "time"

// ExecAction identifies the kind of execution-log entry.
type ExecAction string

const (
	ExecActionBidPlaced      ExecAction = "BID_PLACED"
	ExecActionAskPlaced      ExecAction = "ASK_PLACED"
	ExecActionCanceled       ExecAction = "CANCELED"
	ExecActionFilled         ExecAction = "FILLED"
	ExecActionPositionClosed ExecAction = "POSITION_CLOSED"
)

// ExecutionLogEntry is one append-only record per placement, cancellation, or
// fill. It carries enough fields to reconstruct inventory and trade-count
// invariants for audit.
type ExecutionLogEntry struct {
	ID        int64       `json:"id"`
	UID       string      `json:"uid"`
	Action    ExecAction  `json:"action"`
	Symbol    string      `json:"symbol"`
	OrderID   string      `json:"order_id,omitempty"`
	Price     float64     `json:"price,omitempty"`
	Quantity  float64     `json:"quantity,omitempty"`
	Side      OrderSide   `json:"side,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Status    OrderStatus `json:"status,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

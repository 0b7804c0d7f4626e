package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the other side, used when flattening a position.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus tracks the exchange-side order lifecycle, normalized across
// connectors to the Binance-style status vocabulary.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// OrderRequest is the normalized order submission shape accepted by every
// exchange connector.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      float64
	Price         float64 // ignored for market orders
	ReduceOnly    bool
	PostOnly      bool // maker-only; rejected instead of crossing the book
	ClientOrderID string
}

// Order is the normalized exchange acknowledgement of a placed order.
type Order struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"type"`
	Price         float64     `json:"price"`
	Quantity      float64     `json:"quantity"`
	ExecutedQty   float64     `json:"executed_qty"`
	AvgPrice      float64     `json:"avg_price"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderUpdate is an asynchronous order-status event delivered by an
// exchange's fill-notification stream. FilledQty is the quantity filled by
// this event, not the cumulative executed quantity.
type OrderUpdate struct {
	UID       string // stamped by the transport that owns the stream
	OrderID   string
	Symbol    string
	Status    OrderStatus
	Side      OrderSide
	FilledQty float64
	AvgPrice  float64
	Timestamp time.Time
}

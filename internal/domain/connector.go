package domain

import "context"

// ExchangeConnector is the narrow contract through which the core reaches an
// exchange. A connector instance is bound to one user's credentials; the
// execution gateway resolves the right instance per uid.
//
// GetRawBalance and GetRawPositions return the exchange's payload as loosely
// typed maps; field-name and sign differences across venues are resolved by
// the gateway's normalization layer, not here.
type ExchangeConnector interface {
	// Name returns the exchange identifier, e.g. "binance".
	Name() string

	GetOrderbook(ctx context.Context, symbol string, depth int) (OrderbookSnapshot, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	// CancelOrder is idempotent: cancelling an order that is already gone
	// returns nil.
	CancelOrder(ctx context.Context, symbol, orderID string) error

	GetRawBalance(ctx context.Context) (map[string]any, error)
	GetRawPositions(ctx context.Context, symbol string) ([]map[string]any, error)

	Close() error
}

// FillStreamConnector is implemented by connectors that can deliver
// asynchronous order-status events. The handler is invoked from the stream's
// own goroutine.
type FillStreamConnector interface {
	StreamOrderUpdates(ctx context.Context, handler func(OrderUpdate)) error
}

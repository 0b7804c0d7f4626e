package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a depth snapshot of bids and asks for a symbol.
// Bids are sorted descending, asks ascending, so index 0 is top-of-book.
type OrderbookSnapshot struct {
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// Top extracts the best bid/ask from the snapshot. ok is false when either
// side of the book is empty.
func (s OrderbookSnapshot) Top() (top TopOfBook, ok bool) {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return TopOfBook{}, false
	}
	return TopOfBook{
		Symbol:    s.Symbol,
		BestBid:   s.Bids[0].Price,
		BestAsk:   s.Asks[0].Price,
		Timestamp: s.Timestamp,
	}, true
}

// TopOfBook is the best bid/ask pair used by the quoting decision.
type TopOfBook struct {
	Symbol    string
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}

// Mid returns the mid price, the average of best bid and best ask.
func (t TopOfBook) Mid() float64 {
	return (t.BestBid + t.BestAsk) / 2
}

// SpreadPct returns the bid/ask spread as a fraction of the mid price.
// Returns 0 when the book is degenerate (mid <= 0).
func (t TopOfBook) SpreadPct() float64 {
	mid := t.Mid()
	if mid <= 0 {
		return 0
	}
	return (t.BestAsk - t.BestBid) / mid
}

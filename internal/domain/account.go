package domain

import "time"

// Balance is the canonical USDT-margined account balance produced by the
// execution gateway after normalizing a connector's raw payload.
type Balance struct {
	TotalUSDT     float64   `json:"total_usdt"`
	AvailableUSDT float64   `json:"available_usdt"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Position is the canonical open-position shape. Size is always positive;
// direction is carried by Side.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"` // 0 when the connector does not report it
	Leverage   int       `json:"leverage"`    // 0 when the connector does not report it
}

// Credentials are a user's API credentials for one exchange.
type Credentials struct {
	Exchange  string `json:"exchange"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
}

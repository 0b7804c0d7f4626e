package domain

import (
	"fmt"
	"time"
)

// Default maker settings applied by Normalize when a field is unset.
const (
	DefaultQuoteSize       = 0.001
	DefaultMinSpreadPct    = 0.0002
	DefaultAdversePct      = 0.002
	DefaultCancelAfter     = 5 * time.Second
	DefaultMaxPos          = 0.01
	DefaultMaxTradesPerDay = 500
)

// MakerSettings is the per-user market-making configuration. AdversePct and
// MinSpreadPct are fractions (0.001 == 0.1%), consistent with price ratios.
// All numeric fields are non-negative.
type MakerSettings struct {
	Enabled         bool
	Symbol          string
	QuoteSize       float64
	MinSpreadPct    float64
	AdversePct      float64
	CancelAfter     time.Duration
	MaxPos          float64
	MaxTradesPerDay int
	UpdatedAt       time.Time
}

// Normalize fills unset fields with defaults. Defaults are resolved once at
// load time so the control loop never re-defaults inline.
func (s MakerSettings) Normalize() MakerSettings {
	if s.QuoteSize == 0 {
		s.QuoteSize = DefaultQuoteSize
	}
	if s.MinSpreadPct == 0 {
		s.MinSpreadPct = DefaultMinSpreadPct
	}
	if s.AdversePct == 0 {
		s.AdversePct = DefaultAdversePct
	}
	if s.CancelAfter == 0 {
		s.CancelAfter = DefaultCancelAfter
	}
	if s.MaxPos == 0 {
		s.MaxPos = DefaultMaxPos
	}
	return s
}

// Validate rejects settings the control loop cannot safely run with.
func (s MakerSettings) Validate() error {
	if s.QuoteSize < 0 {
		return fmt.Errorf("settings: quote_size must be non-negative, got %v", s.QuoteSize)
	}
	if s.MinSpreadPct < 0 {
		return fmt.Errorf("settings: min_spread_pct must be non-negative, got %v", s.MinSpreadPct)
	}
	if s.AdversePct < 0 {
		return fmt.Errorf("settings: adverse_pct must be non-negative, got %v", s.AdversePct)
	}
	if s.CancelAfter < 0 {
		return fmt.Errorf("settings: cancel_after must be non-negative, got %v", s.CancelAfter)
	}
	if s.MaxPos < 0 {
		return fmt.Errorf("settings: max_pos must be non-negative, got %v", s.MaxPos)
	}
	if s.MaxTradesPerDay < 0 {
		return fmt.Errorf("settings: max_trades_per_day must be non-negative, got %d", s.MaxTradesPerDay)
	}
	return nil
}

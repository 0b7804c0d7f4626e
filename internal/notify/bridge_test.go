package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
)

func TestRenderLifecycleEvents(t *testing.T) {
	title, msg := render(domain.LoopEvent{Type: domain.EventLoopStarted, UID: "u1", Symbol: "BTCUSDT"})
	require.Equal(t, "Maker session started", title)
	require.Contains(t, msg, "u1")
	require.Contains(t, msg, "BTCUSDT")

	title, _ = render(domain.LoopEvent{Type: domain.EventLoopStopped, UID: "u1", Symbol: "BTCUSDT"})
	require.Equal(t, "Maker session stopped", title)
}

func TestRenderFill(t *testing.T) {
	title, msg := render(domain.LoopEvent{
		Type:      domain.EventOrderFilled,
		UID:       "u1",
		Symbol:    "BTCUSDT",
		Side:      domain.OrderSideBuy,
		Price:     65000.5,
		Quantity:  0.25,
		Inventory: 0.25,
	})
	require.Equal(t, "Order filled", title)
	require.Contains(t, msg, "BUY")
	require.Contains(t, msg, "65000.5")
	require.Contains(t, msg, "0.25")
}

func TestRenderSkipsChattyEvents(t *testing.T) {
	// Per-quote traffic stays off the push channels.
	for _, tp := range []domain.EventType{domain.EventQuotePlaced, domain.EventOrderCanceled} {
		title, _ := render(domain.LoopEvent{Type: tp, UID: "u1"})
		require.Empty(t, title)
	}
}

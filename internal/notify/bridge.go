package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quantpulse/makerbot/internal/domain"
)

// Event types forwarded to operators. Quote placements and cancellations are
// too chatty for push channels; only session lifecycle and fills go out.
const (
	EventSessionStarted = string(domain.EventLoopStarted)
	EventSessionStopped = string(domain.EventLoopStopped)
	EventOrderFilled    = string(domain.EventOrderFilled)
)

// Subscriber is the slice of the event bus the bridge consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bridge relays loop events from the event bus to the operator notification
// channels. It runs until the context is cancelled.
type Bridge struct {
	bus      Subscriber
	notifier *Notifier
	logger   *slog.Logger
}

// NewBridge creates a Bridge between the event bus and the notifier.
func NewBridge(bus Subscriber, notifier *Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Run subscribes to every user's event channel and forwards matching events.
// It should be called in a goroutine; it returns when ctx is cancelled or the
// subscription fails.
func (b *Bridge) Run(ctx context.Context) error {
	msgCh, err := b.bus.Subscribe(ctx, "events:*")
	if err != nil {
		return fmt.Errorf("notify: subscribe to event bus: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				return nil
			}
			b.relay(ctx, data)
		}
	}
}

func (b *Bridge) relay(ctx context.Context, data []byte) {
	var event domain.LoopEvent
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Warn("dropping malformed event", slog.String("error", err.Error()))
		return
	}

	title, message := render(event)
	if title == "" {
		return
	}
	if err := b.notifier.Notify(ctx, string(event.Type), title, message); err != nil {
		b.logger.Warn("notification delivery failed",
			slog.String("uid", event.UID),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}

// render formats an event for push channels. Unlisted event types yield an
// empty title and are skipped.
func render(e domain.LoopEvent) (title, message string) {
	switch e.Type {
	case domain.EventLoopStarted:
		return "Maker session started",
			fmt.Sprintf("user %s quoting %s", e.UID, e.Symbol)
	case domain.EventLoopStopped:
		return "Maker session stopped",
			fmt.Sprintf("user %s stopped on %s", e.UID, e.Symbol)
	case domain.EventOrderFilled:
		return "Order filled",
			fmt.Sprintf("user %s %s %s %.8g @ %.8g (inventory %.8g)",
				e.UID, e.Side, e.Symbol, e.Quantity, e.Price, e.Inventory)
	default:
		return "", ""
	}
}

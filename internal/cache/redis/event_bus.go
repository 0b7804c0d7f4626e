package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/quantpulse/makerbot/internal/domain"
)

// EventBus fans loop events out over Redis Pub/Sub. Each user's events go to
// channel "events:{uid}", so the websocket hub can subscribe per user or to
// "events:*" for all. It implements domain.BroadcastSink.
type EventBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client, logger *slog.Logger) *EventBus {
	return &EventBus{
		rdb:    c.Underlying(),
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

func eventChannel(uid string) string {
	return "events:" + uid
}

// Publish marshals the event and sends it to the user's channel. Delivery is
// best effort; failures are logged and swallowed so the control loop never
// blocks on a slow bus.
func (eb *EventBus) Publish(ctx context.Context, uid string, event domain.LoopEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		eb.logger.Warn("failed to marshal loop event",
			slog.String("uid", uid),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()))
		return
	}
	if err := eb.rdb.Publish(ctx, eventChannel(uid), payload).Err(); err != nil {
		eb.logger.Warn("failed to publish loop event",
			slog.String("uid", uid),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}

// Subscribe creates a Pub/Sub subscription for the given channel pattern and
// returns a read-only channel of raw payloads. The subscription is closed when
// the context is cancelled; the returned channel is closed at that point too.
func (eb *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = eb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = eb.rdb.Subscribe(ctx, channel)
	}

	// Receive the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.BroadcastSink = (*EventBus)(nil)

package binance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
)

func TestNewRequiresCredentials(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(context.Background(), domain.Credentials{Exchange: "binance"}, logger)
	require.Error(t, err)

	conn, err := New(context.Background(), domain.Credentials{
		Exchange:  "binance",
		APIKey:    "k",
		APISecret: "s",
	}, logger)
	require.NoError(t, err)
	require.Equal(t, "binance", conn.Name())
	require.NoError(t, conn.Close())
}

func TestCancelOrderRejectsBadID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := New(context.Background(), domain.Credentials{APIKey: "k", APISecret: "s"}, logger)
	require.NoError(t, err)

	err = conn.CancelOrder(context.Background(), "BTCUSDT", "not-a-number")
	require.ErrorContains(t, err, "bad order id")
}

// fakeStream stands in for the Binance user-data websocket: it records each
// listen key served and hands the test the per-connection channels.
type fakeStream struct {
	mu    sync.Mutex
	keys  []string
	conns chan struct {
		doneC, stopC chan struct{}
	}
}

func newFakeStream() *fakeStream {
	return &fakeStream{conns: make(chan struct {
		doneC, stopC chan struct{}
	}, 4)}
}

func (f *fakeStream) start(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("listen-key-%d", len(f.keys)+1)
	f.keys = append(f.keys, key)
	return key, nil
}

func (f *fakeStream) serve(string, func(*futures.WsUserDataEvent), func(error)) (chan struct{}, chan struct{}, error) {
	conn := struct {
		doneC, stopC chan struct{}
	}{make(chan struct{}), make(chan struct{})}
	f.conns <- conn
	return conn.doneC, conn.stopC, nil
}

func (f *fakeStream) keyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func TestStreamReopensWithFreshKeyAfterDrop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := New(context.Background(), domain.Credentials{APIKey: "k", APISecret: "s"}, logger)
	require.NoError(t, err)

	c := conn.(*Connector)
	stream := newFakeStream()
	c.startStream = stream.start
	c.serveStream = stream.serve
	c.reconnectDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.StreamOrderUpdates(ctx, func(domain.OrderUpdate) {}))

	first := <-stream.conns
	close(first.doneC)

	var second struct {
		doneC, stopC chan struct{}
	}
	select {
	case second = <-stream.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not reopened after a drop")
	}
	require.Equal(t, 2, stream.keyCount())
	require.NotEqual(t, stream.keys[0], stream.keys[1], "reconnect must request a fresh listen key")

	// Cancelling the stream context must stop the live connection and end
	// the supervision goroutine without another reconnect.
	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-second.stopC:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, stream.keyCount())
}

func TestFormatFloat(t *testing.T) {
	require.Equal(t, "0.00000001", formatFloat(0.00000001))
	require.Equal(t, "65000.5", formatFloat(65000.5))
	require.Equal(t, "0", formatFloat(0))
}

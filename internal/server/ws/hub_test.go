package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	ch chan []byte
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func TestExtractUID(t *testing.T) {
	require.Equal(t, "u1", extractUID([]byte(`{"type":"quote_placed","uid":"u1"}`)))
	require.Equal(t, "u1", extractUID([]byte(`{"uid":" u1 "}`)))
	require.Empty(t, extractUID([]byte(`{"type":"quote_placed"}`)))
	require.Empty(t, extractUID([]byte(`not json`)))
}

func TestClientWantsUID(t *testing.T) {
	c := &client{subs: make(map[string]bool)}

	// No subscriptions receives everything.
	require.True(t, c.wantsUID("u1"))
	require.True(t, c.wantsUID(""))

	c.handleSubscription(subscribeMsg{Action: "subscribe", UIDs: []string{"u1", "u2"}})
	require.True(t, c.wantsUID("u1"))
	require.True(t, c.wantsUID("u2"))
	require.False(t, c.wantsUID("u3"))
	// Events without a uid fan out to every client.
	require.True(t, c.wantsUID(""))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", UIDs: []string{"u2"}})
	require.False(t, c.wantsUID("u2"))
}

func TestHubRoutesEventsByUID(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?uid=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMsg := func() map[string]any {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}

	// The welcome frame arrives first.
	welcome := readMsg()
	require.Equal(t, "hub_status", welcome["type"])

	// An event for another user never reaches this client; the next frame
	// this client sees is its own user's event.
	bus.ch <- []byte(`{"type":"quote_placed","uid":"u2","symbol":"ETHUSDT"}`)
	bus.ch <- []byte(`{"type":"quote_placed","uid":"u1","symbol":"BTCUSDT"}`)

	got := readMsg()
	require.Equal(t, "u1", got["uid"])
	require.Equal(t, "BTCUSDT", got["symbol"])
}

func TestHubBroadcastsUnattributedEvents(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte, 8)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?uid=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage() // welcome
	require.NoError(t, err)

	bus.ch <- []byte(`{"type":"announcement"}`)

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "announcement")
}

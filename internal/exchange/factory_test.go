package exchange

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantpulse/makerbot/internal/domain"
)

type nopConnector struct {
	domain.ExchangeConnector

	name   string
	closed atomic.Bool
}

func (c *nopConnector) Name() string { return c.name }

func (c *nopConnector) Close() error {
	c.closed.Store(true)
	return nil
}

type mapCredStore struct{ creds map[string]domain.Credentials }

func (s *mapCredStore) GetCredentials(_ context.Context, uid string) (domain.Credentials, error) {
	c, ok := s.creds[uid]
	if !ok {
		return domain.Credentials{}, domain.ErrNotFound
	}
	return c, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFactoryUnknownExchange(t *testing.T) {
	f := NewFactory()
	_, err := f.New(context.Background(), domain.Credentials{Exchange: "nope"}, discard())
	require.ErrorIs(t, err, domain.ErrUnknownExchange)
}

func TestPoolCachesPerUser(t *testing.T) {
	var builds atomic.Int32
	f := NewFactory()
	f.Register("fake", func(context.Context, domain.Credentials, *slog.Logger) (domain.ExchangeConnector, error) {
		builds.Add(1)
		return &nopConnector{name: "fake"}, nil
	})

	pool := NewPool(f, &mapCredStore{creds: map[string]domain.Credentials{
		"u1": {Exchange: "fake"},
		"u2": {Exchange: "fake"},
	}}, discard())

	c1, err := pool.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	c1again, err := pool.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	require.Same(t, c1, c1again)
	require.Equal(t, int32(1), builds.Load())

	_, err = pool.Resolve(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, int32(2), builds.Load())
}

func TestPoolUnknownUser(t *testing.T) {
	f := NewFactory()
	pool := NewPool(f, &mapCredStore{}, discard())

	_, err := pool.Resolve(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPoolReleaseClosesConnector(t *testing.T) {
	f := NewFactory()
	f.Register("fake", func(context.Context, domain.Credentials, *slog.Logger) (domain.ExchangeConnector, error) {
		return &nopConnector{name: "fake"}, nil
	})
	pool := NewPool(f, &mapCredStore{creds: map[string]domain.Credentials{
		"u1": {Exchange: "fake"},
	}}, discard())

	conn, err := pool.Resolve(context.Background(), "u1")
	require.NoError(t, err)

	pool.Release("u1")
	require.True(t, conn.(*nopConnector).closed.Load())

	// Releasing an unknown uid is a no-op.
	pool.Release("ghost")
}

func TestPoolCloseAll(t *testing.T) {
	f := NewFactory()
	f.Register("fake", func(context.Context, domain.Credentials, *slog.Logger) (domain.ExchangeConnector, error) {
		return &nopConnector{name: "fake"}, nil
	})
	pool := NewPool(f, &mapCredStore{creds: map[string]domain.Credentials{
		"u1": {Exchange: "fake"},
		"u2": {Exchange: "fake"},
	}}, discard())

	c1, _ := pool.Resolve(context.Background(), "u1")
	c2, _ := pool.Resolve(context.Background(), "u2")

	pool.CloseAll()
	require.True(t, c1.(*nopConnector).closed.Load())
	require.True(t, c2.(*nopConnector).closed.Load())
}

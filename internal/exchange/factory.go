// Package exchange resolves per-user exchange connectors. A Factory maps an
// exchange name to a connector constructor; a Pool caches one live connector
// per user, built from the user's stored credentials.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quantpulse/makerbot/internal/domain"
)

// Builder constructs a connector bound to one user's credentials.
type Builder func(ctx context.Context, creds domain.Credentials, logger *slog.Logger) (domain.ExchangeConnector, error)

// Factory maps exchange names to connector builders.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{builders: make(map[string]Builder)}
}

// Register adds a builder for the given exchange name, replacing any
// existing registration.
func (f *Factory) Register(name string, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[name] = b
}

// New builds a connector for the exchange named in the credentials.
func (f *Factory) New(ctx context.Context, creds domain.Credentials, logger *slog.Logger) (domain.ExchangeConnector, error) {
	f.mu.RLock()
	b, ok := f.builders[creds.Exchange]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exchange: %q: %w", creds.Exchange, domain.ErrUnknownExchange)
	}
	return b(ctx, creds, logger)
}

// Pool resolves and caches one connector per user. It is safe for concurrent
// use by the execution gateway and the session manager.
type Pool struct {
	factory *Factory
	creds   domain.CredentialStore
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[string]domain.ExchangeConnector
}

// NewPool creates a Pool resolving credentials through creds and building
// connectors through factory.
func NewPool(factory *Factory, creds domain.CredentialStore, logger *slog.Logger) *Pool {
	return &Pool{
		factory: factory,
		creds:   creds,
		logger:  logger.With(slog.String("component", "connector_pool")),
		conns:   make(map[string]domain.ExchangeConnector),
	}
}

// Resolve returns the user's active connector, building and caching it on
// first use.
func (p *Pool) Resolve(ctx context.Context, uid string) (domain.ExchangeConnector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[uid]; ok {
		return conn, nil
	}

	creds, err := p.creds.GetCredentials(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("exchange: resolve credentials for %s: %w", uid, err)
	}
	conn, err := p.factory.New(ctx, creds, p.logger)
	if err != nil {
		return nil, fmt.Errorf("exchange: build connector for %s: %w", uid, err)
	}
	p.conns[uid] = conn
	return conn, nil
}

// Release closes and evicts the user's cached connector, if any.
func (p *Pool) Release(uid string) {
	p.mu.Lock()
	conn, ok := p.conns[uid]
	delete(p.conns, uid)
	p.mu.Unlock()

	if ok {
		if err := conn.Close(); err != nil {
			p.logger.Warn("close connector",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		}
	}
}

// CloseAll closes every cached connector. Used on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]domain.ExchangeConnector)
	p.mu.Unlock()

	for uid, conn := range conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("close connector",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		}
	}
}

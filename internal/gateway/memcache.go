package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/quantpulse/makerbot/internal/domain"
)

// MemBalanceCache is an in-process domain.BalanceCache for single-box
// deployments and tests. Expired entries are evicted lazily on read.
type MemBalanceCache struct {
	mu      sync.Mutex
	entries map[string]memBalanceEntry
	now     func() time.Time
}

type memBalanceEntry struct {
	bal     domain.Balance
	expires time.Time
}

// NewMemBalanceCache creates an empty in-memory balance cache.
func NewMemBalanceCache() *MemBalanceCache {
	return &MemBalanceCache{
		entries: make(map[string]memBalanceEntry),
		now:     time.Now,
	}
}

// Set stores a balance until its TTL elapses.
func (c *MemBalanceCache) Set(_ context.Context, uid string, bal domain.Balance, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uid] = memBalanceEntry{bal: bal, expires: c.now().Add(ttl)}
	return nil
}

// Get returns the cached balance, or domain.ErrNotFound when missing or
// expired.
func (c *MemBalanceCache) Get(_ context.Context, uid string) (domain.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[uid]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	if c.now().After(entry.expires) {
		delete(c.entries, uid)
		return domain.Balance{}, domain.ErrNotFound
	}
	return entry.bal, nil
}

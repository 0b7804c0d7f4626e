// Package ratelimit implements an in-process token-bucket rate limiter used
// to bound outbound order operations per (uid, exchange, operation) key.
package ratelimit

import (
	"sync"
	"time"
)

// bucket holds the state for one key. Tokens are replenished lazily on each
// consumption attempt from elapsed wall-clock time; there is no background
// refill timer.
type bucket struct {
	capacity    float64
	tokens      float64
	refillPerMs float64
	lastRefill  time.Time
}

// Limiter is a keyed token-bucket rate limiter. Buckets are created lazily on
// first use with a full burst allowance. Safe for concurrent use from the
// scheduler tick, the fill-notification path, and any other order-submission
// caller.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates an empty Limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// TryConsume takes one token from the bucket for key, refilling first based
// on time elapsed since the last attempt at a rate of capacityPerMinute
// tokens per minute, capped at capacityPerMinute. It returns false when no
// whole token is available; callers must fail fast, this limiter never
// queues or blocks.
func (l *Limiter) TryConsume(key string, capacityPerMinute int) bool {
	if capacityPerMinute <= 0 {
		return false
	}
	capacity := float64(capacityPerMinute)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			capacity:    capacity,
			tokens:      capacity,
			refillPerMs: capacity / 60000,
			lastRefill:  now,
		}
		l.buckets[key] = b
	}

	elapsedMs := float64(now.Sub(b.lastRefill)) / float64(time.Millisecond)
	if elapsedMs > 0 {
		b.tokens += elapsedMs * b.refillPerMs
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens reports the current token count for key without consuming. A key
// that has never been consumed from reports zero; its bucket (and its
// capacity) exists only after the first TryConsume.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return 0
	}
	return b.tokens
}

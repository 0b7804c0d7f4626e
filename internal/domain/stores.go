package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SettingsStore resolves the per-user maker settings. Implementations return
// ErrNotFound when the user has no settings document.
type SettingsStore interface {
	GetSettings(ctx context.Context, uid string) (MakerSettings, error)
}

// ExecutionLogStore persists the append-only execution log. Append is
// fire-and-forget from the control loop's perspective; implementations log
// their own failures rather than surfacing them to the caller.
type ExecutionLogStore interface {
	Append(ctx context.Context, uid string, entry ExecutionLogEntry)
	List(ctx context.Context, uid string, opts ListOpts) ([]ExecutionLogEntry, error)
	// ListBefore returns all entries created strictly before the cutoff,
	// across users, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionLogEntry, error)
}

// CredentialStore resolves a user's exchange API credentials.
type CredentialStore interface {
	GetCredentials(ctx context.Context, uid string) (Credentials, error)
}

// BalanceCache stores normalized balances with a short TTL to absorb bursts
// of reads against the exchange.
type BalanceCache interface {
	Set(ctx context.Context, uid string, bal Balance, ttl time.Duration) error
	Get(ctx context.Context, uid string) (Balance, error)
}

// BroadcastSink delivers best-effort events to zero or more live channels.
// Publish never returns an error to the caller; implementations handle and
// log their own delivery failures.
type BroadcastSink interface {
	Publish(ctx context.Context, uid string, event LoopEvent)
}

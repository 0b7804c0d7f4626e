package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/makerbot/internal/domain"
)

// SettingsStore reads and writes per-user maker settings in PostgreSQL. It
// implements domain.SettingsStore.
type SettingsStore struct {
	pool *pgxpool.Pool
}

// NewSettingsStore creates a SettingsStore backed by the given client.
func NewSettingsStore(client *Client) *SettingsStore {
	return &SettingsStore{pool: client.Pool()}
}

const selectSettings = `
	SELECT enabled, symbol, quote_size, min_spread_pct, adverse_pct,
	       cancel_after_ms, max_pos, max_trades_per_day, updated_at
	FROM maker_settings
	WHERE uid = $1`

// GetSettings returns the settings for a user with defaults applied. Returns
// domain.ErrNotFound when the user has no settings row.
func (s *SettingsStore) GetSettings(ctx context.Context, uid string) (domain.MakerSettings, error) {
	var (
		settings      domain.MakerSettings
		cancelAfterMs int64
	)
	err := s.pool.QueryRow(ctx, selectSettings, uid).Scan(
		&settings.Enabled,
		&settings.Symbol,
		&settings.QuoteSize,
		&settings.MinSpreadPct,
		&settings.AdversePct,
		&cancelAfterMs,
		&settings.MaxPos,
		&settings.MaxTradesPerDay,
		&settings.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MakerSettings{}, fmt.Errorf("postgres: settings for %s: %w", uid, domain.ErrNotFound)
	}
	if err != nil {
		return domain.MakerSettings{}, fmt.Errorf("postgres: get settings: %w", err)
	}
	settings.CancelAfter = time.Duration(cancelAfterMs) * time.Millisecond
	return settings.Normalize(), nil
}

const upsertSettings = `
	INSERT INTO maker_settings
		(uid, enabled, symbol, quote_size, min_spread_pct, adverse_pct,
		 cancel_after_ms, max_pos, max_trades_per_day, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	ON CONFLICT (uid) DO UPDATE SET
		enabled            = EXCLUDED.enabled,
		symbol             = EXCLUDED.symbol,
		quote_size         = EXCLUDED.quote_size,
		min_spread_pct     = EXCLUDED.min_spread_pct,
		adverse_pct        = EXCLUDED.adverse_pct,
		cancel_after_ms    = EXCLUDED.cancel_after_ms,
		max_pos            = EXCLUDED.max_pos,
		max_trades_per_day = EXCLUDED.max_trades_per_day,
		updated_at         = NOW()`

// PutSettings validates and upserts the settings row for a user.
func (s *SettingsStore) PutSettings(ctx context.Context, uid string, settings domain.MakerSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, upsertSettings,
		uid,
		settings.Enabled,
		settings.Symbol,
		settings.QuoteSize,
		settings.MinSpreadPct,
		settings.AdversePct,
		settings.CancelAfter.Milliseconds(),
		settings.MaxPos,
		settings.MaxTradesPerDay,
	)
	if err != nil {
		return fmt.Errorf("postgres: put settings: %w", err)
	}
	return nil
}

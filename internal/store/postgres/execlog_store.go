package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpulse/makerbot/internal/domain"
)

// ExecLogStore persists execution log entries in PostgreSQL. It implements
// domain.ExecutionLogStore.
type ExecLogStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewExecLogStore creates an ExecLogStore backed by the given client.
func NewExecLogStore(client *Client, logger *slog.Logger) *ExecLogStore {
	return &ExecLogStore{
		pool:   client.Pool(),
		logger: logger.With(slog.String("component", "execlog_store")),
	}
}

const insertExecLog = `
	INSERT INTO execution_log
		(uid, action, symbol, order_id, price, quantity, side, reason, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Append records an execution log entry. Persistence failures are logged and
// swallowed so a database hiccup never blocks the quoting path.
func (s *ExecLogStore) Append(ctx context.Context, uid string, entry domain.ExecutionLogEntry) {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, insertExecLog,
		uid,
		string(entry.Action),
		entry.Symbol,
		entry.OrderID,
		entry.Price,
		entry.Quantity,
		string(entry.Side),
		entry.Reason,
		entry.Status,
		createdAt,
	)
	if err != nil {
		s.logger.Warn("failed to append execution log entry",
			slog.String("uid", uid),
			slog.String("action", string(entry.Action)),
			slog.String("error", err.Error()))
	}
}

// List returns the most recent entries for a user, newest first, honoring
// the optional time window in opts.
func (s *ExecLogStore) List(ctx context.Context, uid string, opts domain.ListOpts) ([]domain.ExecutionLogEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, uid, action, symbol, order_id, price, quantity, side, reason, status, created_at
		FROM execution_log
		WHERE uid = $1`
	args := []any{uid}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	args = append(args, limit, opts.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution log: %w", err)
	}
	defer rows.Close()
	return scanExecLogRows(rows)
}

const selectExecLogBefore = `
	SELECT id, uid, action, symbol, order_id, price, quantity, side, reason, status, created_at
	FROM execution_log
	WHERE created_at < $1
	ORDER BY created_at ASC`

// ListBefore returns all entries older than the cutoff across users, oldest
// first. The archiver uses it to collect cold entries before deletion.
func (s *ExecLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionLogEntry, error) {
	rows, err := s.pool.Query(ctx, selectExecLogBefore, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution log before cutoff: %w", err)
	}
	defer rows.Close()
	return scanExecLogRows(rows)
}

var _ domain.ExecutionLogStore = (*ExecLogStore)(nil)

const deleteExecLogBefore = `DELETE FROM execution_log WHERE created_at < $1`

// DeleteBefore removes entries older than the cutoff and returns the number
// of rows deleted.
func (s *ExecLogStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteExecLogBefore, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete execution log before cutoff: %w", err)
	}
	return tag.RowsAffected(), nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanExecLogRows(rows pgxRows) ([]domain.ExecutionLogEntry, error) {
	var entries []domain.ExecutionLogEntry
	for rows.Next() {
		var (
			e      domain.ExecutionLogEntry
			action string
			side   string
			status string
		)
		if err := rows.Scan(
			&e.ID, &e.UID, &action, &e.Symbol, &e.OrderID,
			&e.Price, &e.Quantity, &side, &e.Reason, &status, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution log row: %w", err)
		}
		e.Action = domain.ExecAction(action)
		e.Side = domain.OrderSide(side)
		e.Status = domain.OrderStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate execution log rows: %w", err)
	}
	return entries, nil
}

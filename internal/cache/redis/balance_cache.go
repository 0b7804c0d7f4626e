package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantpulse/makerbot/internal/domain"
)

// BalanceCache implements domain.BalanceCache using Redis hashes with a TTL.
// Each user's balance is stored at key "balance:{uid}" with fields "total",
// "available" and "fetched_at" (Unix nanosecond timestamp).
type BalanceCache struct {
	rdb *redis.Client
}

// NewBalanceCache creates a BalanceCache backed by the given Client.
func NewBalanceCache(c *Client) *BalanceCache {
	return &BalanceCache{rdb: c.Underlying()}
}

func balanceKey(uid string) string {
	return "balance:" + uid
}

// Set stores the normalized balance for a user and arms the key's TTL.
func (bc *BalanceCache) Set(ctx context.Context, uid string, bal domain.Balance, ttl time.Duration) error {
	key := balanceKey(uid)
	fields := map[string]interface{}{
		"total":      strconv.FormatFloat(bal.TotalUSDT, 'f', -1, 64),
		"available":  strconv.FormatFloat(bal.AvailableUSDT, 'f', -1, 64),
		"fetched_at": strconv.FormatInt(bal.FetchedAt.UnixNano(), 10),
	}

	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set balance %s: %w", uid, err)
	}
	return nil
}

// Get retrieves the cached balance for a user. It returns domain.ErrNotFound
// when the key is missing or has expired.
func (bc *BalanceCache) Get(ctx context.Context, uid string) (domain.Balance, error) {
	vals, err := bc.rdb.HGetAll(ctx, balanceKey(uid)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Balance{}, fmt.Errorf("redis: get balance %s: %w", uid, err)
	}
	if len(vals) == 0 {
		return domain.Balance{}, domain.ErrNotFound
	}

	total, err := strconv.ParseFloat(vals["total"], 64)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("redis: parse total for %s: %w", uid, err)
	}
	available, err := strconv.ParseFloat(vals["available"], 64)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("redis: parse available for %s: %w", uid, err)
	}
	fetchedNano, err := strconv.ParseInt(vals["fetched_at"], 10, 64)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("redis: parse fetched_at for %s: %w", uid, err)
	}

	return domain.Balance{
		TotalUSDT:     total,
		AvailableUSDT: available,
		FetchedAt:     time.Unix(0, fetchedNano),
	}, nil
}

// Compile-time interface check.
var _ domain.BalanceCache = (*BalanceCache)(nil)

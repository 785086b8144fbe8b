package repository

import (
    "context"
    "time"

    "github.com/redis/go-redis/v9"
)

// ProcessedCache remembers payment ids whose notification has already been
// applied, so duplicate deliveries skip the processor lookup and the
// ledger transaction.  It is an optimisation only; a nil client turns
// every call into a no-op and the ledger's conditional updates still keep
// confirmation idempotent.
type ProcessedCache struct {
    rdb    *redis.Client
    ttl    time.Duration
    prefix string
}

// NewProcessedCache builds a cache on rdb.  rdb may be nil.
func NewProcessedCache(rdb *redis.Client, ttl time.Duration) *ProcessedCache {
    if ttl <= 0 {
        ttl = 24 * time.Hour
    }
    return &ProcessedCache{rdb: rdb, ttl: ttl, prefix: "enroll:webhook:processed"}
}

func (c *ProcessedCache) key(paymentID string) string { return c.prefix + ":" + paymentID }

// Seen reports whether paymentID was marked within the TTL.
func (c *ProcessedCache) Seen(ctx context.Context, paymentID string) (bool, error) {
    if c == nil || c.rdb == nil || paymentID == "" {
        return false, nil
    }
    n, err := c.rdb.Exists(ctx, c.key(paymentID)).Result()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// Mark records paymentID as applied.
func (c *ProcessedCache) Mark(ctx context.Context, paymentID string) error {
    if c == nil || c.rdb == nil || paymentID == "" {
        return nil
    }
    return c.rdb.Set(ctx, c.key(paymentID), "1", c.ttl).Err()
}

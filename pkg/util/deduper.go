package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CycleClaimer hands out one claim per (rule, due cycle) across all runners
// sharing the Redis instance.
type CycleClaimer struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCycleClaimer(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CycleClaimer {
	return &CycleClaimer{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// ClaimKey is exported for tests and operators inspecting Redis.
func ClaimKey(ruleID string, dueAt time.Time) string {
	return fmt.Sprintf("recurring:claim:%s:%d", ruleID, dueAt.UTC().UnixMicro())
}

// Claim returns true when the caller is the first to claim this cycle.
// Redis errors are returned so the caller can decide to fail open.
func (c *CycleClaimer) Claim(ctx context.Context, ruleID string, dueAt time.Time) (bool, error) {
	key := ClaimKey(ruleID, dueAt)
	ok, err := c.rdb.SetNX(ctx, key, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		c.logger.Info("Cycle already claimed by another runner",
			zap.String("rule_id", ruleID),
			zap.String("claim_key", key),
		)
	}
	return ok, nil
}

// Release drops a claim so a failed cycle can be retried by the next pass.
func (c *CycleClaimer) Release(ctx context.Context, ruleID string, dueAt time.Time) error {
	return c.rdb.Del(ctx, ClaimKey(ruleID, dueAt)).Err()
}

package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureCounter tracks consecutive execution failures per rule.
type FailureCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFailureCounter(rdb *redis.Client, ttl time.Duration) *FailureCounter {
	return &FailureCounter{rdb: rdb, ttl: ttl}
}

func failureKey(ruleID string) string {
	return fmt.Sprintf("recurring:failures:%s", ruleID)
}

// Increment bumps the streak and returns the new count.
func (r *FailureCounter) Increment(ctx context.Context, ruleID string) (int64, error) {
	key := failureKey(ruleID)
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.rdb.Expire(ctx, key, r.ttl)
	}
	return count, nil
}

// Reset clears the streak after a successful execution.
func (r *FailureCounter) Reset(ctx context.Context, ruleID string) error {
	return r.rdb.Del(ctx, failureKey(ruleID)).Err()
}

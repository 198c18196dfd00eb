package schedcalls

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"voiceops-platform/pkg/utils"
)

// RedisLimiter caps concurrent dispatches per tenant using the shared Redis
// concurrency-cap scripts. The TTL bounds leaked slots if a completion
// webhook never arrives.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func capKey(tenantID string) string { return "dispatch:cap:" + tenantID }

func (l *RedisLimiter) Acquire(ctx context.Context, tenantID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, capKey(tenantID), l.limit, l.ttl)
}

// Release frees a slot; called from the completion webhook path.
func (l *RedisLimiter) Release(ctx context.Context, tenantID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, capKey(tenantID))
}

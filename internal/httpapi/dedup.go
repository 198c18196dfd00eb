package httpapi

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper tracks which webhook deliveries have already been processed.
//
// Seen is checked before processing; Mark is written only after processing
// succeeds, so a failed delivery stays unmarked and the provider's retry is
// not absorbed as a duplicate.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// RedisDeduper keys processed events in Redis. The TTL bounds the marker set;
// provider retry horizons are hours, not days.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func dedupKey(key string) string { return "webhook:evt:" + key }

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.rdb.Exists(ctx, dedupKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, key string) error {
	return d.rdb.Set(ctx, dedupKey(key), 1, d.ttl).Err()
}

package enrichment

import (
	"context"
	"time"

	"voicemail-recorder/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const DefaultLimiterKey = "voicemail:enrichment:inflight"

// RedisLimiter is a Limiter shared by every process pointed at the same
// Redis. TTL must outlast the longest job so a crashed holder's slot is
// eventually reclaimed.
type RedisLimiter struct {
	rdb   redis.Scripter
	key   string
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb redis.Scripter, key string, limit int, ttl time.Duration) *RedisLimiter {
	if key == "" {
		key = DefaultLimiterKey
	}
	return &RedisLimiter{rdb: rdb, key: key, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key)
}

package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLimiterTimeout = 2 * time.Second

// RedisLimiter shares a minimum interval across processes using SET NX PX.
type RedisLimiter struct {
	client   *redis.Client
	prefix   string
	interval time.Duration
}

func NewRedis(client *redis.Client, prefix string, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, interval: interval}
}

// Allow claims key for one interval. Redis errors fail open.
func (r *RedisLimiter) Allow(key string) bool {
	if r.client == nil || r.interval <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisLimiterTimeout)
	defer cancel()

	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().Format(time.RFC3339Nano), r.interval).Result()
	if err != nil {
		return true
	}
	return ok
}

var _ RateLimiter = (*RedisLimiter)(nil)

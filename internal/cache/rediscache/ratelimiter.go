package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a window counter in Redis. Every hit refreshes the key's
// TTL, so a key is forgotten only after a full quiet window.
type RateLimiter struct {
	c      *redis.Client
	prefix string
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c:      redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "tracklog:rl:",
	}
}

// Allow increments key and reports whether the count is still within limit.
// Returns (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	k := rl.prefix + key
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}

// Once reports true for the first call with key inside ttl and false for
// every repeat until the key expires.
func (rl *RateLimiter) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := rl.c.SetNX(ctx, rl.prefix+"once:"+key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}

package cache

import (
	"context"
	"time"
)

// BytesCache is a best-effort key/value cache. Callers treat errors as
// misses.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Limiter is a fixed-window counter keyed by caller-chosen strings.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Deduper lets one caller per key through until ttl elapses.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

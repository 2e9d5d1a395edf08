package data

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache adapts *redis.Client to the narrow Get/Set contract the curve
// and FX read-through paths depend on, the same Cache.Get(ctx,
// key).Result() / Cache.Set(ctx, key, val, ttl).Err() calls used throughout
// internal/services/marketdata for checkpoint values.
type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache wraps client, or returns nil if client is nil so callers can
// pass conn.Cache straight through without a nil-check at every call site.
func NewRedisCache(client *redis.Client) *RedisCache {
	if client == nil {
		return nil
	}
	return &RedisCache{Client: client}
}

// Get returns (value, true) on a cache hit, ("", false) on a miss or error —
// a cache failure is never fatal to the caller, which falls back to the
// store/external path.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.Client == nil {
		return "", false
	}
	val, err := c.Client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set best-effort caches value under key with the given expiry; errors are
// swallowed the same way conn.Cache.Set(...).Err() is discarded in
// marketdata's checkpoint writes.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.Client == nil {
		return
	}
	_ = c.Client.Set(ctx, key, value, ttl).Err()
}

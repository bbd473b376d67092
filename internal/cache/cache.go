// Package cache is the short-TTL response cache that sits in front of
// budget request reads and department budget lookups.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Cache stores opaque payloads with a TTL. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// GetOrCompute is a read-through lookup. On a miss fn runs once, its result
// is stored under key and returned. Cache failures are logged and treated as
// a miss; fn errors are returned without caching.
func GetOrCompute[T any](ctx context.Context, c Cache, log *zap.Logger, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if raw, ok, err := c.Get(ctx, key); err != nil {
		log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		log.Warn("cache payload undecodable, recomputing", zap.String("key", key))
	}

	v, err := fn()
	if err != nil {
		return v, err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		log.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// GetJSON decodes a cached value. ok is false on miss, decode failure or
// cache error.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var v T
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}

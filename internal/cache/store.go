package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
// It backs both rate limiting counters and the local notification blob.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

const keyPrefix = "bitebell:"

func namespaced(key string) string {
	if len(key) >= len(keyPrefix) && key[:len(keyPrefix)] == keyPrefix {
		return key
	}
	return keyPrefix + key
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

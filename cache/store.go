package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired
var ErrMiss = errors.New("cache: miss")

// Store is a key/value cache with expiry, shared by cached read paths and the rate limiter
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	// Incr increments a counter that expires window after its first increment.
	// It returns the new count and the time left before the counter resets.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Close() error
}

var defaultStore Store

// Default returns the process-wide store, creating an in-memory one on first use
func Default() Store {
	if defaultStore == nil {
		defaultStore = NewMemoryStore(time.Minute)
	}
	return defaultStore
}

// SetDefault replaces the process-wide store
func SetDefault(store Store) {
	defaultStore = store
}

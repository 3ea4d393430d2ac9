package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
)

// Remember returns the cached value for key, or loads it, caches it for ttl and returns it.
// Cache failures are logged and fall through to load. A nil store always loads.
func Remember[T any](ctx context.Context, store Store, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if store == nil {
		return load()
	}
	data, err := store.Get(ctx, key)
	switch {
	case err == nil:
		var cached T
		decodeErr := json.Unmarshal(data, &cached)
		if decodeErr == nil {
			return cached, nil
		}
		log.Printf("Failed to unmarshal cached %s (continuing with DB): %v", key, decodeErr)
	case errors.Is(err, ErrMiss):
	default:
		log.Printf("Cache error for %s (continuing with DB): %v", key, err)
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		log.Printf("Failed to marshal %s for cache: %v", key, err)
		return value, nil
	}
	if err := store.Set(ctx, key, encoded, ttl); err != nil {
		log.Printf("Failed to cache %s: %v", key, err)
	}
	return value, nil
}

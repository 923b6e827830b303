package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by Get when the key is not in the cache.
var ErrCacheMiss = errors.New("key does not exist")

// CacheInterface defines the set of methods that need to be implemented to
// be used as a cache storage.
type CacheInterface interface {
	Connect(url string) error
	Disconnect() error
	// Set stores value under key. A ttl of zero uses the cache default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get decodes the value stored under key into dest, or returns ErrCacheMiss.
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// NewCache creates a new CacheInterface with a Redis backend.
// It connects to the provided address, and returns the cache instance or
// an error if the connection failed.
func NewCache(url string) (CacheInterface, error) {
	cache := NewRedisCache() // Currently, the redis cache is hardcoded.
	err := cache.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return cache, nil
}

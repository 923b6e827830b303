package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL is used by Set when no ttl is given.
const DefaultTTL = 72 * time.Hour

// RedisCache is a struct representing a Redis cache instance.
// It provides an interface to perform CRUD operations on the cache instance.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new instance of RedisCache.
// This function doesn't establish a connection to the Redis server.
// To connect to the server, use the Connect method of the returned RedisCache instance.
func NewRedisCache() *RedisCache {
	return &RedisCache{}
}

// NewRedisCacheWithClient wraps an already configured client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Connect establishes a connection to the Redis backend.
func (r *RedisCache) Connect(redisURL string) error {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}

	r.client = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Disconnect closes the connection to the Redis server.
func (r *RedisCache) Disconnect() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Set sets a key-value pair in the Redis cache.
// It marshals the value into a JSON string before storing it.
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	marshaledValue, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return r.client.Set(ctx, key, marshaledValue, ttl).Err()
}

// Get retrieves the value of a given key from the Redis cache and
// unmarshals it into dest. If the key is not found, it returns ErrCacheMiss.
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	} else if err != nil {
		return err
	}
	return json.Unmarshal(value, dest)
}

// Delete removes the given keys. Missing keys are ignored.
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Clear removes all keys from the currently selected database in the Redis cache.
func (r *RedisCache) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

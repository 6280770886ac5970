package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a small JSON read-through cache on Redis, used for hot listing
// responses. Counter side effects (filter usage, query tracking) happen on
// the write path before the cache is consulted, so caching never suppresses
// them for cold keys; cached hits intentionally do not re-count.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to ping redis at %s: %w", addr, err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	return "catalog:" + strings.Join(parts, ":")
}

// GetJSON loads a cached value into dest. Returns false without error on a
// cache miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache: failed to get key %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: failed to decode key %q: %w", key, err)
	}
	return true, nil
}

// SetJSON stores a value under the cache TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to encode key %q: %w", key, err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %q: %w", key, err)
	}
	return nil
}

// Invalidate removes keys, typically after a curator job rewrites a section.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete keys: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

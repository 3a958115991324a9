// Package seen provides a best-effort Redis cache of webhook deliveries that
// already converged. A miss or a Redis outage never changes the end state;
// the lifecycle transition stays idempotent on its own.
package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewCacheWithClient(client, ttl), nil
}

// NewCacheWithClient creates a cache from an existing Redis client.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, prefix: "delivery:", ttl: ttl}
}

func (c *Cache) key(channel, publicationID string) string {
	return c.prefix + channel + ":" + publicationID
}

// Seen reports whether this delivery was already handled. Errors read as
// "not seen" so a Redis failure degrades to reapplying an idempotent
// transition.
func (c *Cache) Seen(ctx context.Context, channel, publicationID string) bool {
	count, err := c.client.Exists(ctx, c.key(channel, publicationID)).Result()
	if err != nil {
		return false
	}
	return count > 0
}

// Mark records a handled delivery. Failures are dropped.
func (c *Cache) Mark(ctx context.Context, channel, publicationID string) {
	_ = c.client.Set(ctx, c.key(channel, publicationID), time.Now().Unix(), c.ttl).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

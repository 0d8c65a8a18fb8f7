package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// keyPattern matches every list-query entry; point lookups are not
// cached server-side.
const keyPattern = "properties:*"

// PageCache is an optional Redis read-through cache for list queries,
// keyed by the normalized filter cache key. Every accepted mutation
// flushes the whole pattern. Cache failures are logged and fall through
// to the engine; the cache never becomes a point of failure.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewPageCache(addr string, ttl time.Duration, logger *logrus.Logger) *PageCache {
	if addr == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PageCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached payload for key, if any. A nil receiver is a
// disabled cache and always misses.
func (c *PageCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return payload, true
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	}
	return nil, false
}

func (c *PageCache) Set(ctx context.Context, key string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

// InvalidateAll deletes every cached list page. Runs after each
// accepted mutation, typically off the request goroutine.
func (c *PageCache) InvalidateAll(ctx context.Context) {
	if c == nil {
		return
	}

	var keys []string
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, keyPattern, 100).Result()
		if err != nil {
			c.logger.WithError(err).Warn("Cache scan failed")
			return
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithError(err).Warn("Cache invalidation failed")
		return
	}
	c.logger.WithField("keys", len(keys)).Debug("Server-side page cache invalidated")
}

func (c *PageCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Package cache keeps tag usage counts in Redis in front of the store.
//
// Usage counts back every unconstrained facet list and tag cloud, and they
// change only when items are tagged or untagged. Writers call Invalidate
// after mutating associations; readers tolerate staleness up to the TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hurttlocker/tagfacets/internal/store"
)

const (
	DefaultTTL    = 5 * time.Minute
	DefaultPrefix = "tagfacets:"
)

// Source loads usage counts on a cache miss.
type Source interface {
	TagUsage(ctx context.Context, f store.ItemFilter) ([]store.TagCount, error)
}

// Options configures a UsageCache.
type Options struct {
	TTL    time.Duration
	Prefix string
	Logger *zap.Logger
}

// UsageCache is a read-through Redis cache of per-tag usage counts.
type UsageCache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewClient builds a Redis client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// New wraps source with a cache stored in client.
func New(client *redis.Client, source Source, opts Options) *UsageCache {
	c := &UsageCache{
		client: client,
		source: source,
		ttl:    opts.TTL,
		prefix: opts.Prefix,
		logger: opts.Logger,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.prefix == "" {
		c.prefix = DefaultPrefix
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Ping checks the Redis connection.
func (c *UsageCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// TagUsage returns cached counts for f, loading them from the source on a
// miss. Redis failures fall back to the source.
func (c *UsageCache) TagUsage(ctx context.Context, f store.ItemFilter) ([]store.TagCount, error) {
	key := c.key(f)

	val, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var counts []store.TagCount
		if err := json.Unmarshal(val, &counts); err == nil {
			return counts, nil
		}
		c.logger.Warn("discarding undecodable usage entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("usage cache read failed", zap.String("key", key), zap.Error(err))
	}

	counts, err := c.source.TagUsage(ctx, f)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("encoding usage: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("usage cache write failed", zap.String("key", key), zap.Error(err))
	}
	return counts, nil
}

// Invalidate drops every cached usage entry.
func (c *UsageCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"usage:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning usage keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting usage keys: %w", err)
	}
	c.logger.Debug("usage cache invalidated", zap.Int("keys", len(keys)))
	return nil
}

// Close closes the Redis client.
func (c *UsageCache) Close() error {
	return c.client.Close()
}

func (c *UsageCache) key(f store.ItemFilter) string {
	subtree := "-"
	if f.SubtreeOf != nil {
		subtree = strconv.FormatInt(*f.SubtreeOf, 10)
	}
	return c.prefix + "usage:" + string(f.Kind) + ":" + string(f.Subtype) + ":" + subtree
}

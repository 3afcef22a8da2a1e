package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache interface using Redis
type RedisCache struct {
	client  redis.UniversalClient
	options Options
}

func NewRedisCache(client redis.UniversalClient, opts *Options) *RedisCache {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.Name == "" {
		o.Name = "default"
	}

	return &RedisCache{
		client:  client,
		options: o,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheLookup(c.options.Name, false)
			return ErrCacheMiss
		}
		return fmt.Errorf("redis get error: %w", err)
	}

	if err := c.options.Codec.Decode(data, dest); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}

	metrics.RecordCacheLookup(c.options.Name, true)
	return nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := c.options.Codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}

	if ttl == 0 {
		ttl = c.options.DefaultTTL
	}

	if err := c.client.Set(ctx, c.buildKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	built := make([]string, len(keys))
	for i, key := range keys {
		built[i] = c.buildKey(key)
	}

	if err := c.client.Del(ctx, built...).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, pattern string) error {
	pattern = c.buildKey(pattern)

	var cursor uint64
	var keys []string
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan error: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline delete error: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// WithNamespace returns a cache sharing the client under a nested namespace.
func (c *RedisCache) WithNamespace(namespace string) *RedisCache {
	o := c.options
	if o.Namespace != "" {
		o.Namespace = fmt.Sprintf("%s:%s", o.Namespace, namespace)
	} else {
		o.Namespace = namespace
	}
	return &RedisCache{client: c.client, options: o}
}

func (c *RedisCache) buildKey(key string) string {
	if c.options.Namespace != "" {
		return fmt.Sprintf("%s:%s", c.options.Namespace, key)
	}
	return key
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the interface for cache operations
type Cache interface {
	// Get decodes the cached value into dest, or returns ErrCacheMiss
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value; a zero ttl means the default TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) error

	// Invalidate removes all keys matching a glob pattern
	Invalidate(ctx context.Context, pattern string) error

	Ping(ctx context.Context) error
}

// Codec defines the interface for encoding/decoding cache values
type Codec interface {
	Encode(value interface{}) ([]byte, error)
	Decode(data []byte, dest interface{}) error
}

type JSONCodec struct{}

func (c JSONCodec) Encode(value interface{}) ([]byte, error) {
	return json.Marshal(value)
}

func (c JSONCodec) Decode(data []byte, dest interface{}) error {
	return json.Unmarshal(data, dest)
}

type Options struct {
	// Name labels the hit/miss metrics
	Name       string
	DefaultTTL time.Duration
	// Namespace is a prefix for all cache keys
	Namespace string
	Codec     Codec
}

func DefaultOptions() *Options {
	return &Options{
		Name:       "default",
		DefaultTTL: 5 * time.Minute,
		Codec:      JSONCodec{},
	}
}

// KeyBuilder joins key parts with ":" under a namespace.
type KeyBuilder struct {
	namespace string
}

func NewKeyBuilder(namespace string) KeyBuilder {
	return KeyBuilder{namespace: namespace}
}

func (b KeyBuilder) Build(parts ...string) string {
	if b.namespace != "" {
		parts = append([]string{b.namespace}, parts...)
	}
	return strings.Join(parts, ":")
}

// Pattern builds a pattern for cache invalidation
func (b KeyBuilder) Pattern(parts ...string) string {
	return b.Build(parts...) + "*"
}

package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/metrics"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a process local Cache used when redis is disabled. Expired
// entries are dropped lazily on access.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	options Options
	now     func() time.Time
}

func NewMemoryCache(opts *Options) *MemoryCache {
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
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		options: o,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.expired(entry) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	metrics.RecordCacheLookup(c.options.Name, ok)
	if !ok {
		return ErrCacheMiss
	}
	return c.options.Codec.Decode(entry.data, dest)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := c.options.Codec.Encode(value)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.options.DefaultTTL
	}

	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

// Invalidate removes keys matching a glob pattern, with the same syntax
// path.Match accepts.
func (c *MemoryCache) Invalidate(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if ok, err := path.Match(pattern, key); err != nil {
			return err
		} else if ok {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

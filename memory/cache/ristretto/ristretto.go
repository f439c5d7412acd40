package ristretto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/convctx/memory"
)

// hash is the value stored under one cache key.
type hash struct {
	mu     sync.RWMutex
	fields map[string]string
}

// Config sizes the underlying cache.
type Config struct {
	// MaxKeys is the number of per-user hashes kept before eviction.
	// Default: 100000.
	MaxKeys int64
}

// HashCache implements memory.HashCache in process on top of ristretto.
// Each key holds one hash; the TTL applies to the whole hash, as in Redis.
type HashCache struct {
	cache *ristretto.Cache

	// mu serializes hash creation so two writers never race to install
	// different hashes under one key.
	mu sync.Mutex
}

var _ memory.HashCache = (*HashCache)(nil)

// New creates an in-process hash cache.
func New(cfg Config) (*HashCache, error) {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.MaxKeys * 10,
		MaxCost:            cfg.MaxKeys,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &HashCache{cache: cache}, nil
}

func (c *HashCache) lookup(key string) (*hash, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	h, ok := v.(*hash)
	return h, ok
}

// HSet sets one field, creating the hash without expiry if needed.
func (c *HashCache) HSet(ctx context.Context, key, field, value string) error {
	h, ok := c.lookup(key)
	if !ok {
		c.mu.Lock()
		h, ok = c.lookup(key)
		if !ok {
			h = &hash{fields: make(map[string]string)}
			if !c.cache.Set(key, h, 1) {
				c.mu.Unlock()
				return fmt.Errorf("hset %s: cache rejected new key", key)
			}
			c.cache.Wait()
		}
		c.mu.Unlock()
	}

	h.mu.Lock()
	h.fields[field] = value
	h.mu.Unlock()
	return nil
}

// HGetAll returns a copy of every field. A missing or expired key yields an
// empty map.
func (c *HashCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	h, ok := c.lookup(key)
	if !ok {
		return map[string]string{}, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		out[k] = v
	}
	return out, nil
}

// HDel removes fields from a hash.
func (c *HashCache) HDel(ctx context.Context, key string, fields ...string) error {
	h, ok := c.lookup(key)
	if !ok {
		return nil
	}
	h.mu.Lock()
	for _, f := range fields {
		delete(h.fields, f)
	}
	h.mu.Unlock()
	return nil
}

// HLen returns the number of fields in a hash.
func (c *HashCache) HLen(ctx context.Context, key string) (int, error) {
	h, ok := c.lookup(key)
	if !ok {
		return 0, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.fields), nil
}

// Expire resets the TTL of an existing hash. Missing keys are ignored.
func (c *HashCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.lookup(key)
	if !ok {
		return nil
	}
	if !c.cache.SetWithTTL(key, h, 1, ttl) {
		return fmt.Errorf("expire %s: cache rejected update", key)
	}
	c.cache.Wait()
	return nil
}

// Del removes a hash.
func (c *HashCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Del(key)
	c.cache.Wait()
	return nil
}

// Close stops the cache's background goroutines.
func (c *HashCache) Close() error {
	c.cache.Close()
	return nil
}

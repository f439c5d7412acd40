package cached

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/convctx/memory"
)

// Config sizes the memo.
type Config struct {
	// MaxEntries bounds the number of cached vectors. Default: 10000.
	MaxEntries int64

	// TTL expires cached vectors. Zero keeps them until evicted.
	TTL time.Duration
}

// Embedder memoizes another embedder. Relevance filtering re-embeds the
// same recent exchanges on every turn, so hits are common.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
	ttl   time.Duration
}

var _ memory.Embedder = (*Embedder)(nil)

// New wraps inner with a ristretto-backed memo.
func New(inner memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.MaxEntries * 10,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{inner: inner, cache: cache, ttl: cfg.TTL}, nil
}

// Embed returns the cached vector for text or computes and stores it.
// Errors are not cached. The returned slice must not be modified.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.SetWithTTL(text, vec, 1, e.ttl)
	return vec, nil
}

// Dimensions returns the wrapped embedder's size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are visible.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close stops the cache.
func (e *Embedder) Close() error {
	e.cache.Close()
	return nil
}

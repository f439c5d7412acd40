package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/becomeliminal/convctx/memory"
	"github.com/becomeliminal/convctx/memory/cache/redis"
	"github.com/becomeliminal/convctx/memory/cache/ristretto"
	"github.com/becomeliminal/convctx/memory/embedder/cached"
	"github.com/becomeliminal/convctx/memory/embedder/hashing"
	"github.com/becomeliminal/convctx/memory/embedder/onnx"
	"github.com/becomeliminal/convctx/memory/store/chromem"
	"github.com/becomeliminal/convctx/memory/store/sqlite"
)

// Stack is an opened context engine with its backends. The clients are
// created once here and shared by everything that receives the manager.
type Stack struct {
	Manager  *memory.ConversationManager
	Cache    memory.HashCache
	Index    memory.VectorIndex
	Embedder memory.Embedder

	closers []io.Closer
}

// Open builds the backends selected by cfg and a manager over them.
// Backends named "none" are left nil, which the manager treats as
// unavailable tiers.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = cfg.Logger()
	}
	s := &Stack{}

	var err error
	if s.Cache, err = openCache(ctx, cfg.Cache); err != nil {
		return nil, err
	}
	if s.Index, err = openIndex(ctx, cfg, logger); err != nil {
		s.closeBackends()
		return nil, err
	}
	if s.Embedder, err = s.openEmbedder(cfg.Embedder, logger); err != nil {
		s.closeBackends()
		return nil, err
	}

	s.Manager, err = memory.NewConversationManager(s.Cache, s.Index, s.Embedder, cfg.Memory, memory.WithLogger(logger))
	if err != nil {
		s.closeBackends()
		return nil, fmt.Errorf("create manager: %w", err)
	}
	logger.Info("context engine ready",
		"cache", cfg.Cache.Backend,
		"index", cfg.Index.Backend,
		"embedder", cfg.Embedder.Backend)
	return s, nil
}

func openCache(ctx context.Context, cfg CacheConfig) (memory.HashCache, error) {
	switch cfg.Backend {
	case CacheRistretto:
		c, err := ristretto.New(ristretto.Config{MaxKeys: cfg.MaxKeys})
		if err != nil {
			return nil, err
		}
		return c, nil
	case CacheRedis:
		c, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, nil
}

func openIndex(ctx context.Context, cfg *Config, logger *slog.Logger) (memory.VectorIndex, error) {
	switch cfg.Index.Backend {
	case IndexChromem:
		idx, err := chromem.NewWithConfig(chromem.Config{
			Path:       cfg.Index.Path,
			Compress:   cfg.Index.Compress,
			Dimensions: cfg.Embedder.Dimensions,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexSQLite:
		path := cfg.Index.Path
		if path == "" {
			path = ":memory:"
		}
		idx, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, nil
}

func (s *Stack) openEmbedder(cfg EmbedderConfig, logger *slog.Logger) (memory.Embedder, error) {
	var base memory.Embedder
	switch cfg.Backend {
	case EmbedONNX:
		e, err := onnx.New(onnx.Config{
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			LibraryPath:   cfg.LibraryPath,
			Dimensions:    cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("open onnx embedder: %w", err)
		}
		s.closers = append(s.closers, e)
		base = e
	default:
		base = hashing.NewWithDimensions(cfg.Dimensions)
	}
	if cfg.CacheEntries < 0 {
		return base, nil
	}
	memo, err := cached.New(base, cached.Config{MaxEntries: cfg.CacheEntries, TTL: cfg.CacheTTL})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, memo)
	logger.Debug("embedding memo enabled", "max_entries", cfg.CacheEntries)
	return memo, nil
}

// closeBackends releases whatever was opened before a failure.
func (s *Stack) closeBackends() {
	if s.Cache != nil {
		s.Cache.Close()
	}
	if s.Index != nil {
		s.Index.Close()
	}
	for _, c := range s.closers {
		c.Close()
	}
}

// Close releases the manager's backends and the embedders.
func (s *Stack) Close() error {
	errs := []error{s.Manager.Close()}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

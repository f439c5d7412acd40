// Package config loads the context engine configuration and builds its
// backends.
//
// Configuration comes from an optional YAML file (CONVCTX_CONFIG or the
// --config flag) with environment variables applied on top. A .env file in
// the working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/convctx/memory"
)

// Backend names.
const (
	CacheRistretto = "ristretto"
	CacheRedis     = "redis"
	IndexChromem   = "chromem"
	IndexSQLite    = "sqlite"
	EmbedHashing   = "hashing"
	EmbedONNX      = "onnx"
	BackendNone    = "none"
)

// Config is the complete configuration of a context engine deployment.
type Config struct {
	// Cache selects the recency tier backend.
	Cache CacheConfig `yaml:"cache"`

	// Index selects the similarity tier backend.
	Index IndexConfig `yaml:"index"`

	// Embedder selects the embedding provider.
	Embedder EmbedderConfig `yaml:"embedder"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`

	// Memory holds the engine tunables.
	Memory *memory.Config `yaml:"memory"`
}

// CacheConfig configures the recency tier.
type CacheConfig struct {
	// Backend is ristretto, redis or none.
	// Default: ristretto
	Backend string `yaml:"backend"`

	// RedisURL is used by the redis backend, e.g. redis://localhost:6379/0.
	RedisURL string `yaml:"redis_url"`

	// MaxKeys bounds the ristretto backend.
	MaxKeys int64 `yaml:"max_keys"`
}

// IndexConfig configures the similarity tier.
type IndexConfig struct {
	// Backend is chromem, sqlite or none.
	// Default: chromem
	Backend string `yaml:"backend"`

	// Path is the chromem persistence directory or the SQLite database
	// file. Empty keeps chromem in memory; sqlite then uses :memory:.
	Path string `yaml:"path"`

	// Compress gzips persisted chromem documents.
	Compress bool `yaml:"compress"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Backend is hashing or onnx.
	// Default: hashing
	Backend string `yaml:"backend"`

	// Dimensions of the hashing embedder.
	// Default: 384
	Dimensions int `yaml:"dimensions"`

	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path"`

	// CacheEntries bounds the embedding memo. Negative disables it.
	// Default: 10000
	CacheEntries int64 `yaml:"cache_entries"`

	// CacheTTL expires memoized vectors. Zero keeps them until evicted.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Cache:    CacheConfig{Backend: CacheRistretto},
		Index:    IndexConfig{Backend: IndexChromem},
		Embedder: EmbedderConfig{Backend: EmbedHashing, Dimensions: 384, CacheEntries: 10000},
		LogLevel: "info",
		Memory:   memory.DefaultConfig(),
	}
}

// Load reads .env into the process environment, then the YAML file at path
// (or CONVCTX_CONFIG when path is empty), then applies CONVCTX_* variables.
func Load(path string) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONVCTX_CONFIG")
	}
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Parse(data, os.Getenv)
}

// Parse builds a configuration from YAML data and an environment lookup.
// Empty data yields the defaults.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.DefaultConfig()
	}
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, name string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	set(&c.Cache.Backend, "CONVCTX_CACHE")
	set(&c.Cache.RedisURL, "CONVCTX_REDIS_URL")
	set(&c.Index.Backend, "CONVCTX_INDEX")
	set(&c.Index.Path, "CONVCTX_INDEX_PATH")
	set(&c.Embedder.Backend, "CONVCTX_EMBEDDER")
	set(&c.Embedder.ModelPath, "CONVCTX_ONNX_MODEL")
	set(&c.Embedder.TokenizerPath, "CONVCTX_ONNX_TOKENIZER")
	set(&c.Embedder.LibraryPath, "CONVCTX_ONNX_LIBRARY")
	set(&c.LogLevel, "CONVCTX_LOG_LEVEL")
}

// Validate checks backend names and the memory tunables.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case CacheRistretto, BackendNone:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache: redis backend requires redis_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache: unknown backend %q", c.Cache.Backend))
	}
	switch c.Index.Backend {
	case IndexChromem, IndexSQLite, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("index: unknown backend %q", c.Index.Backend))
	}
	switch c.Embedder.Backend {
	case EmbedHashing:
	case EmbedONNX:
		if c.Embedder.ModelPath == "" || c.Embedder.TokenizerPath == "" {
			errs = append(errs, errors.New("embedder: onnx backend requires model_path and tokenizer_path"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedder: unknown backend %q", c.Embedder.Backend))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Memory.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

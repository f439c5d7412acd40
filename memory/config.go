package memory

import (
	"fmt"
	"math"
	"time"
)

// Weights are the confidence signal weights. They must sum to 1.
type Weights struct {
	MessageCount      float64 `yaml:"message_count"`
	Recency           float64 `yaml:"recency"`
	Relevance         float64 `yaml:"relevance"`
	IntentConsistency float64 `yaml:"intent_consistency"`
}

// DefaultWeights are the empirically chosen confidence weights.
var DefaultWeights = Weights{
	MessageCount:      0.2,
	Recency:           0.3,
	Relevance:         0.4,
	IntentConsistency: 0.1,
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.MessageCount + w.Recency + w.Relevance + w.IntentConsistency
}

// Validate checks that every weight is non-negative and the total is 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.MessageCount, w.Recency, w.Relevance, w.IntentConsistency} {
		if v < 0 {
			return fmt.Errorf("confidence weights must be non-negative: %+v", w)
		}
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("confidence weights must sum to 1, got %.6f", w.Sum())
	}
	return nil
}

// Config holds context engine configuration.
type Config struct {
	// Disabled turns the engine off: every read returns the empty context
	// and every write is a no-op. The zero value leaves the engine on.
	Disabled bool `yaml:"disabled"`

	// RecencyTTL is refreshed on the per-user cache hash at every write.
	// Default: 7 days.
	RecencyTTL time.Duration `yaml:"recency_ttl"`

	// MaxRecentEntries caps the per-user cache hash; oldest entries go first.
	// Default: 50.
	MaxRecentEntries int `yaml:"max_recent_entries"`

	// RecentFetchLimit is how many recent exchanges are considered per request.
	// Default: 20.
	RecentFetchLimit int `yaml:"recent_fetch_limit"`

	// MaxContextMessages is the total context slot budget. Recency takes at
	// most half of it; the similarity index fills the rest.
	// Default: 10.
	MaxContextMessages int `yaml:"max_context_messages"`

	// RelevanceThreshold is the minimum cosine similarity [-1, 1] for an
	// exchange to count as relevant, in both the filter and the index query.
	// Default: 0.3 (tuned for all-MiniLM-L6-v2).
	RelevanceThreshold float64 `yaml:"relevance_threshold"`

	// MaxContextChars is the default rendering budget.
	// Default: 3000.
	MaxContextChars int `yaml:"max_context_chars"`

	// Weights for the confidence score.
	Weights Weights `yaml:"weights"`

	// ChunkSize and ChunkOverlap shape analysis windows.
	// Default: 10 and 2.
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// TopicLimit caps the topics returned by the processor.
	// Default: 5.
	TopicLimit int `yaml:"topic_limit"`

	// SessionGap starts a new session when exceeded between two exchanges.
	// Default: 30 minutes.
	SessionGap time.Duration `yaml:"session_gap"`

	// EmbedConcurrency bounds parallel candidate embedding.
	// Default: 4.
	EmbedConcurrency int `yaml:"embed_concurrency"`

	// TrimInterval is the period of the background cache trimmer.
	// Default: 10 minutes.
	TrimInterval time.Duration `yaml:"trim_interval"`

	// MinConfidence is the confidence below which callers should proceed
	// without context.
	// Default: 0.3.
	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RecencyTTL:         7 * 24 * time.Hour,
		MaxRecentEntries:   50,
		RecentFetchLimit:   20,
		MaxContextMessages: 10,
		RelevanceThreshold: 0.3,
		MaxContextChars:    3000,
		Weights:            DefaultWeights,
		ChunkSize:          10,
		ChunkOverlap:       2,
		TopicLimit:         5,
		SessionGap:         30 * time.Minute,
		EmbedConcurrency:   4,
		TrimInterval:       10 * time.Minute,
		MinConfidence:      0.3,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	switch {
	case c.MaxRecentEntries <= 0:
		return fmt.Errorf("MaxRecentEntries must be positive, got %d", c.MaxRecentEntries)
	case c.RecentFetchLimit <= 0:
		return fmt.Errorf("RecentFetchLimit must be positive, got %d", c.RecentFetchLimit)
	case c.MaxContextMessages <= 0:
		return fmt.Errorf("MaxContextMessages must be positive, got %d", c.MaxContextMessages)
	case c.RelevanceThreshold < -1 || c.RelevanceThreshold > 1:
		return fmt.Errorf("RelevanceThreshold must be within [-1, 1], got %v", c.RelevanceThreshold)
	case c.ChunkSize <= 0:
		return fmt.Errorf("ChunkSize must be positive, got %d", c.ChunkSize)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("ChunkOverlap must be within [0, ChunkSize), got %d", c.ChunkOverlap)
	case c.RecencyTTL < 0:
		return fmt.Errorf("RecencyTTL must not be negative, got %s", c.RecencyTTL)
	}
	return nil
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	out := *c
	if out.RecencyTTL == 0 {
		out.RecencyTTL = d.RecencyTTL
	}
	if out.MaxRecentEntries == 0 {
		out.MaxRecentEntries = d.MaxRecentEntries
	}
	if out.RecentFetchLimit == 0 {
		out.RecentFetchLimit = d.RecentFetchLimit
	}
	if out.MaxContextMessages == 0 {
		out.MaxContextMessages = d.MaxContextMessages
	}
	if out.MaxContextChars == 0 {
		out.MaxContextChars = d.MaxContextChars
	}
	if out.Weights == (Weights{}) {
		out.Weights = d.Weights
	}
	if out.ChunkSize == 0 {
		out.ChunkSize = d.ChunkSize
		if out.ChunkOverlap == 0 {
			out.ChunkOverlap = d.ChunkOverlap
		}
	}
	if out.TopicLimit == 0 {
		out.TopicLimit = d.TopicLimit
	}
	if out.SessionGap == 0 {
		out.SessionGap = d.SessionGap
	}
	if out.EmbedConcurrency == 0 {
		out.EmbedConcurrency = d.EmbedConcurrency
	}
	if out.TrimInterval == 0 {
		out.TrimInterval = d.TrimInterval
	}
	return &out
}

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/becomeliminal/convctx/core"
)

var tracer = otel.Tracer("github.com/becomeliminal/convctx/memory")

// ExchangeInput is one turn to record.
type ExchangeInput struct {
	UserID      string
	Username    string
	UserMessage string
	Response    string

	// Intent is the optional classification tag.
	Intent string

	// ID overrides the derived id, for callers that reserved one earlier.
	ID string

	// ContextUsed records whether the response was produced with history.
	ContextUsed bool
}

// IntentCount is one entry of an intent ranking.
type IntentCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

// Summary is the per-user statistics shown by status commands.
type Summary struct {
	UserID           string        `json:"user_id"`
	RecentCount      int           `json:"recent_messages_count"`
	TotalCount       int           `json:"total_messages_count"`
	LastConversation *time.Time    `json:"last_conversation,omitempty"`
	TopIntents       []IntentCount `json:"most_common_intents"`
}

// ConversationManager is the SDK-provided Manager implementation. It owns
// the tier adapters and wires them into the assembler, processor and
// lifecycle controller.
//
// The cache, index and embedder are process-wide clients created once at
// startup and shared by every request; any of them may be nil, which
// disables the corresponding tier.
type ConversationManager struct {
	config     *Config
	recency    *RecencyStore
	similarity *SimilarityIndex
	assembler  *Assembler
	processor  *Processor
	lifecycle  *Lifecycle
	sessions   *sessionTracker
	extractor  KeywordExtractor
	now        func() time.Time
	logger     *slog.Logger
}

var _ Manager = (*ConversationManager)(nil)

// Option configures a ConversationManager.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	extractor KeywordExtractor
	now       func() time.Time
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithKeywordExtractor replaces the heuristic keyword extractor.
func WithKeywordExtractor(x KeywordExtractor) Option {
	return func(o *options) {
		o.extractor = x
	}
}

// WithClock sets the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewConversationManager creates a manager over the given collaborators.
func NewConversationManager(cache HashCache, index VectorIndex, embedder Embedder, config *Config, opts ...Option) (*ConversationManager, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.withDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{
		logger:    slog.Default(),
		extractor: HeuristicExtractor{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if cache == nil {
		logger.Warn("no cache configured, recent history disabled")
	}
	if index == nil {
		logger.Warn("no vector index configured, similarity recall disabled")
	}
	if embedder == nil {
		logger.Warn("no embedder configured, relevance falls back to recency order")
	}

	recency := NewRecencyStore(cache, config.RecencyTTL, config.MaxRecentEntries, logger)
	similarity := NewSimilarityIndex(index, embedder, logger)
	filter := NewRelevanceFilter(embedder, config.RelevanceThreshold, config.EmbedConcurrency, logger)
	assembler := NewAssembler(recency, similarity, filter, embedder, config, o.now, logger)

	return &ConversationManager{
		config:     config,
		recency:    recency,
		similarity: similarity,
		assembler:  assembler,
		processor:  NewProcessor(assembler, o.extractor, config, o.now),
		lifecycle:  NewLifecycle(recency, similarity, config.MaxRecentEntries, logger),
		sessions:   newSessionTracker(config.SessionGap),
		extractor:  o.extractor,
		now:        o.now,
		logger:     logger.With("component", "manager"),
	}, nil
}

// Config returns the effective configuration.
func (m *ConversationManager) Config() *Config {
	return m.config
}

// AddExchange writes the exchange to both tiers and returns its id. The two
// writes are independent: a failure of either is logged and the other still
// counts. Only invalid input is an error.
func (m *ConversationManager) AddExchange(ctx context.Context, in ExchangeInput) (string, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return "", errors.New("add exchange: user id is required")
	}
	if strings.TrimSpace(in.UserMessage) == "" {
		return "", errors.New("add exchange: user message is required")
	}

	ctx, span := tracer.Start(ctx, "memory.AddExchange")
	defer span.End()

	ts, session, turn := m.sessions.next(in.UserID, m.now())
	ex := &core.Exchange{
		ID:          in.ID,
		UserID:      in.UserID,
		Username:    in.Username,
		UserMessage: in.UserMessage,
		Response:    in.Response,
		Timestamp:   ts,
		Intent:      in.Intent,
		SessionID:   session,
		Turn:        turn,
		ContextUsed: in.ContextUsed,
	}
	if ex.ID == "" {
		ex.ID = core.NewExchangeID(in.UserID, ts)
	}
	ex.Topics = m.extractor.Tags(ex)

	if m.config.Disabled {
		return ex.ID, nil
	}

	if err := m.recency.Put(ctx, ex); err != nil {
		m.logger.Warn("exchange not cached", "user_id", in.UserID, "exchange_id", ex.ID, "error", err)
	}
	if err := m.similarity.Upsert(ctx, ex); err != nil {
		m.logger.Warn("exchange not indexed", "user_id", in.UserID, "exchange_id", ex.ID, "error", err)
	}
	m.lifecycle.Track(in.UserID)

	span.SetAttributes(attribute.String("exchange.id", ex.ID), attribute.Int("exchange.turn", turn))
	m.logger.Info("stored exchange", "user_id", in.UserID, "username", in.Username, "exchange_id", ex.ID, "session_id", session)
	return ex.ID, nil
}

// GetContext assembles the context for currentMessage with the default
// character budget.
func (m *ConversationManager) GetContext(ctx context.Context, userID, currentMessage string, includeSimilarity bool) *AssembledContext {
	return m.Assemble(ctx, userID, currentMessage, AssembleOptions{
		MaxChars:          m.config.MaxContextChars,
		IncludeSimilarity: includeSimilarity,
	})
}

// Assemble is GetContext with explicit options.
func (m *ConversationManager) Assemble(ctx context.Context, userID, currentMessage string, opts AssembleOptions) *AssembledContext {
	if m.config.Disabled || userID == "" {
		return emptyContext()
	}

	ctx, span := tracer.Start(ctx, "memory.GetContext")
	defer span.End()

	result := m.assembler.Assemble(ctx, userID, currentMessage, opts)
	span.SetAttributes(
		attribute.Int("context.messages", len(result.Messages)),
		attribute.Float64("context.confidence", result.Confidence))
	return result
}

// ProcessContext returns the summary, topic and confidence bundle for
// currentMessage. maxChars <= 0 uses the configured budget.
func (m *ConversationManager) ProcessContext(ctx context.Context, userID, currentMessage string, maxChars int) *ContextBundle {
	if m.config.Disabled || userID == "" {
		return m.processor.Bundle(emptyContext())
	}

	ctx, span := tracer.Start(ctx, "memory.ProcessContext")
	defer span.End()

	bundle := m.processor.Process(ctx, userID, currentMessage, maxChars)
	span.SetAttributes(
		attribute.Int("context.messages", bundle.MessageCount),
		attribute.Int("context.chunks", bundle.ChunksProcessed),
		attribute.Float64("context.confidence", bundle.Confidence))
	return bundle
}

// Processor exposes chunking, topic and pattern analysis.
func (m *ConversationManager) Processor() *Processor {
	return m.processor
}

// ClearHistory deletes the user's exchanges from both tiers. A
// *core.PartialClearError reports which tier failed; the other tier is
// cleared regardless.
func (m *ConversationManager) ClearHistory(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "memory.ClearHistory")
	defer span.End()

	m.sessions.forget(userID)
	err := m.lifecycle.Clear(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial clear")
	}
	return err
}

// DetectClearIntent reports whether text asks to wipe the history.
func (m *ConversationManager) DetectClearIntent(text string) bool {
	return DetectClearIntent(text)
}

// PatchResponse replaces the response of exchange id in both tiers and
// recomputes its vector. It returns core.ErrNotFound when neither tier knows
// the exchange. Tier outages are logged, not returned.
func (m *ConversationManager) PatchResponse(ctx context.Context, id, userID, newResponse string) error {
	if m.config.Disabled {
		return nil
	}

	indexed, cached, missing := false, false, false

	if m.similarity.Available() {
		_, err := m.similarity.PatchResponse(ctx, userID, id, newResponse)
		switch {
		case err == nil:
			indexed = true
		case errors.Is(err, core.ErrNotFound):
			missing = true
		default:
			m.logger.Warn("index patch failed", "user_id", userID, "exchange_id", id, "error", err)
		}
	}

	if m.recency.Available() {
		ex, err := m.recency.Get(ctx, userID, id)
		switch {
		case err == nil:
			cached = true
			ex.Response = newResponse
			if err := m.recency.Put(ctx, ex); err != nil {
				m.logger.Warn("cache patch failed", "user_id", userID, "exchange_id", id, "error", err)
			}
		case errors.Is(err, core.ErrNotFound):
			// An evicted cache entry is not an error while the index
			// still holds the exchange.
			missing = true
		default:
			m.logger.Warn("cache lookup for patch failed", "user_id", userID, "exchange_id", id, "error", err)
		}
	}

	if !indexed && !cached {
		if missing {
			return fmt.Errorf("patch response %s: %w", id, core.ErrNotFound)
		}
		return nil
	}
	m.logger.Info("patched response", "user_id", userID, "exchange_id", id, "indexed", indexed, "cached", cached)
	return nil
}

// GetSummary returns conversation statistics. Unavailable tiers count as zero.
func (m *ConversationManager) GetSummary(ctx context.Context, userID string) *Summary {
	summary := &Summary{UserID: userID, TopIntents: []IntentCount{}}
	if m.config.Disabled {
		return summary
	}

	recent := m.recency.ListRecent(ctx, userID, -1)
	summary.RecentCount = len(recent)
	if len(recent) > 0 {
		last := recent[0].Timestamp
		summary.LastConversation = &last
	}

	all := recent
	if m.similarity.Available() {
		indexed, err := m.similarity.List(ctx, userID)
		if err != nil {
			m.logger.Warn("total count unavailable", "user_id", userID, "error", err)
		} else {
			summary.TotalCount = len(indexed)
			all = indexed
			if n := len(indexed); n > 0 {
				if last := indexed[n-1].Timestamp; summary.LastConversation == nil || last.After(*summary.LastConversation) {
					summary.LastConversation = &last
				}
			}
		}
	}

	summary.TopIntents = rankIntents(all, 3)
	return summary
}

// RunTrimmer trims the recency cache every TrimInterval until ctx is done.
func (m *ConversationManager) RunTrimmer(ctx context.Context) {
	m.lifecycle.Run(ctx, m.config.TrimInterval)
}

// TrimAll trims every user written through this manager once.
func (m *ConversationManager) TrimAll(ctx context.Context) int {
	return m.lifecycle.TrimAll(ctx)
}

// RecentCount returns the number of cached exchanges of a user.
func (m *ConversationManager) RecentCount(ctx context.Context, userID string) (int, error) {
	return m.recency.Count(ctx, userID)
}

// ListRecent returns up to limit cached exchanges of a user, newest first.
func (m *ConversationManager) ListRecent(ctx context.Context, userID string, limit int) []*core.Exchange {
	return m.recency.ListRecent(ctx, userID, limit)
}

// SearchSimilar queries the similarity index directly with text.
func (m *ConversationManager) SearchSimilar(ctx context.Context, userID, text string, limit int) []*core.Exchange {
	return m.similarity.QueryText(ctx, userID, text, limit, m.config.RelevanceThreshold)
}

// Close releases the collaborators that need it.
func (m *ConversationManager) Close() error {
	var errs []error
	if m.recency.cache != nil {
		errs = append(errs, m.recency.cache.Close())
	}
	if m.similarity.index != nil {
		errs = append(errs, m.similarity.index.Close())
	}
	return errors.Join(errs...)
}

// rankIntents counts intents, most frequent first, ties by name.
func rankIntents(exchanges []*core.Exchange, limit int) []IntentCount {
	counts := make(map[string]int)
	for _, ex := range exchanges {
		if ex.Intent != "" {
			counts[ex.Intent]++
		}
	}
	ranked := make([]IntentCount, 0, len(counts))
	for intent, n := range counts {
		ranked = append(ranked, IntentCount{Intent: intent, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count == ranked[j].Count {
			return ranked[i].Intent < ranked[j].Intent
		}
		return ranked[i].Count > ranked[j].Count
	})
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

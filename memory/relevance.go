package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/convctx/core"
)

// RelevanceFilter ranks candidate exchanges by embedding similarity to the
// current message. Candidates are re-embedded from "{message} {response}"
// because recency-tier exchanges carry no stored vector.
type RelevanceFilter struct {
	embedder    Embedder
	threshold   float64
	concurrency int
	logger      *slog.Logger
}

// NewRelevanceFilter creates a filter. A nil embedder makes every call take
// the recency-order fallback.
func NewRelevanceFilter(embedder Embedder, threshold float64, concurrency int, logger *slog.Logger) *RelevanceFilter {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &RelevanceFilter{
		embedder:    embedder,
		threshold:   threshold,
		concurrency: concurrency,
		logger:      logger.With("component", "relevance"),
	}
}

// Filter returns at most maxResults candidates scoring at least the
// threshold, best first. When embeddings are unavailable it returns the
// candidates newest first instead, still capped at maxResults.
func (f *RelevanceFilter) Filter(ctx context.Context, candidates []*core.Exchange, currentMessage string, maxResults int) []*core.Exchange {
	if len(candidates) == 0 || maxResults <= 0 {
		return nil
	}
	if f.embedder == nil {
		return recencyFallback(candidates, maxResults)
	}

	query, err := f.embedder.Embed(ctx, currentMessage)
	if err != nil {
		f.logger.Warn("query embedding failed, using recency order", "error", err)
		return recencyFallback(candidates, maxResults)
	}
	return f.Rank(ctx, candidates, query, maxResults)
}

// Rank is Filter with a precomputed query vector. A nil query vector takes
// the recency-order fallback.
func (f *RelevanceFilter) Rank(ctx context.Context, candidates []*core.Exchange, query []float32, maxResults int) []*core.Exchange {
	if len(candidates) == 0 || maxResults <= 0 {
		return nil
	}
	if f.embedder == nil || query == nil {
		return recencyFallback(candidates, maxResults)
	}

	scores, failed := f.score(ctx, candidates, query)
	if failed == len(candidates) {
		f.logger.Warn("candidate embedding failed, using recency order", "candidates", failed)
		return recencyFallback(candidates, maxResults)
	}

	type scored struct {
		ex    *core.Exchange
		score float64
	}
	kept := make([]scored, 0, len(candidates))
	for i, ex := range candidates {
		if scores[i] != nil && *scores[i] >= f.threshold {
			kept = append(kept, scored{ex: ex, score: *scores[i]})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if len(kept) > maxResults {
		kept = kept[:maxResults]
	}

	out := make([]*core.Exchange, len(kept))
	for i, k := range kept {
		ex := *k.ex
		ex.RelevanceScore = k.score
		out[i] = &ex
	}
	f.logger.Debug("filtered candidates", "candidates", len(candidates), "kept", len(out))
	return out
}

// score embeds every candidate concurrently and returns its similarity to
// query. A candidate that cannot be embedded has a nil score and is counted
// in failed.
func (f *RelevanceFilter) score(ctx context.Context, candidates []*core.Exchange, query []float32) ([]*float64, int) {
	scores := make([]*float64, len(candidates))
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, ex := range candidates {
		g.Go(func() error {
			vec, err := f.embedder.Embed(ctx, ex.RelevanceText())
			if err != nil {
				failed.Add(1)
				f.logger.Debug("candidate not scored", "exchange_id", ex.ID,
					"error", fmt.Errorf("%w: %w", err, core.ErrEmbeddingUnavailable))
				return nil
			}
			sim := Cosine(query, vec)
			scores[i] = &sim
			return nil
		})
	}
	_ = g.Wait()
	return scores, int(failed.Load())
}

// recencyFallback returns copies of the newest maxResults candidates with no
// relevance score. Ties on timestamp break on id so the order is stable.
func recencyFallback(candidates []*core.Exchange, maxResults int) []*core.Exchange {
	out := make([]*core.Exchange, len(candidates))
	for i, ex := range candidates {
		cp := *ex
		cp.RelevanceScore = 0
		out[i] = &cp
	}
	sortNewestFirst(out)
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

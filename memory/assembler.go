package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/convctx/core"
)

// contextHeader opens every rendered context.
const contextHeader = "### Relevant Conversation History:"

// AssembledContext is the result of one context lookup.
type AssembledContext struct {
	// Text is the rendered history within the character budget.
	Text string

	// Messages are all selected exchanges, oldest first.
	Messages []*core.Exchange

	// Confidence is within [0, 1]; 0 exactly when Messages is empty.
	Confidence float64

	// FromRecency and FromSimilarity count where Messages came from.
	FromRecency    int
	FromSimilarity int
}

// Empty reports whether no history was found.
func (c *AssembledContext) Empty() bool {
	return c == nil || len(c.Messages) == 0
}

// emptyContext is the never-nil result for "no history".
func emptyContext() *AssembledContext {
	return &AssembledContext{Messages: []*core.Exchange{}}
}

// AssembleOptions tunes one Assemble call.
type AssembleOptions struct {
	MaxChars          int
	IncludeSimilarity bool
}

// Assembler merges the recency and similarity tiers into one context.
type Assembler struct {
	recency    *RecencyStore
	similarity *SimilarityIndex
	filter     *RelevanceFilter
	embedder   Embedder
	config     *Config
	now        func() time.Time
	logger     *slog.Logger
}

// NewAssembler wires an assembler. embedder is used once per call for the
// current message and may be nil.
func NewAssembler(recency *RecencyStore, similarity *SimilarityIndex, filter *RelevanceFilter, embedder Embedder, config *Config, now func() time.Time, logger *slog.Logger) *Assembler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		recency:    recency,
		similarity: similarity,
		filter:     filter,
		embedder:   embedder,
		config:     config,
		now:        now,
		logger:     logger.With("component", "assembler"),
	}
}

// Assemble builds the context for currentMessage. It never returns nil.
//
// Steps: fetch recent exchanges and embed the message concurrently, keep the
// relevant recent ones (at most half the slot budget), fill the remaining
// slots from the similarity index excluding ids already chosen, order
// chronologically, render within opts.MaxChars and score confidence.
func (a *Assembler) Assemble(ctx context.Context, userID, currentMessage string, opts AssembleOptions) *AssembledContext {
	if opts.MaxChars <= 0 {
		opts.MaxChars = a.config.MaxContextChars
	}

	var recent []*core.Exchange
	var query []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent = a.recency.ListRecent(gctx, userID, a.config.RecentFetchLimit)
		return nil
	})
	if a.embedder != nil {
		g.Go(func() error {
			vec, err := a.embedder.Embed(gctx, currentMessage)
			if err != nil {
				a.logger.Warn("message embedding unavailable", "user_id", userID, "error", fmt.Errorf("%w: %w", err, core.ErrEmbeddingUnavailable))
				return nil
			}
			query = vec
			return nil
		})
	}
	_ = g.Wait()

	slots := a.config.MaxContextMessages
	selected := a.filter.Rank(ctx, recent, query, slots/2)
	fromRecency := len(selected)

	fromSimilarity := 0
	if opts.IncludeSimilarity && len(selected) < slots && query != nil {
		seen := make(map[string]bool, len(selected)*2)
		for _, ex := range selected {
			seen[ex.ID] = true
			seen[timestampKey(ex)] = true
		}
		remaining := slots - len(selected)
		// Over-fetch so exclusions do not starve the remaining slots.
		hits := a.similarity.Query(ctx, userID, query, remaining+len(selected), a.config.RelevanceThreshold)
		for _, ex := range hits {
			if seen[ex.ID] || seen[timestampKey(ex)] {
				continue
			}
			selected = append(selected, ex)
			fromSimilarity++
			if fromSimilarity == remaining {
				break
			}
		}
	}

	if len(selected) == 0 {
		a.logger.Debug("no context found", "user_id", userID)
		return emptyContext()
	}

	sortOldestFirst(selected)
	now := a.now()
	result := &AssembledContext{
		Text:           Render(selected, opts.MaxChars),
		Messages:       selected,
		Confidence:     Confidence(selected, now, a.config.Weights),
		FromRecency:    fromRecency,
		FromSimilarity: fromSimilarity,
	}
	a.logger.Info("assembled context",
		"user_id", userID,
		"messages", len(selected),
		"from_recency", fromRecency,
		"from_similarity", fromSimilarity,
		"confidence", result.Confidence,
		"query", truncateLog(currentMessage, 50))
	return result
}

func timestampKey(ex *core.Exchange) string {
	return "ts:" + ex.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Render formats exchanges, oldest first, as history text of at most
// maxChars characters. An exchange that would overflow the budget ends the
// rendering; exchanges are never cut in half. The header counts toward the
// budget, and if no exchange fits the result is empty.
func Render(exchanges []*core.Exchange, maxChars int) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteByte('\n')
	used := utf8.RuneCountInString(contextHeader) + 1
	rendered := 0

	for _, ex := range exchanges {
		stamp := ex.Timestamp.UTC().Format("15:04")
		block := fmt.Sprintf("[%s] User: %s\n[%s] Bot: %s\n\n", stamp, ex.UserMessage, stamp, ex.Response)
		n := utf8.RuneCountInString(block)
		if used+n > maxChars {
			break
		}
		b.WriteString(block)
		used += n
		rendered++
	}

	if rendered == 0 {
		return ""
	}
	return b.String()
}

package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/becomeliminal/convctx/core"
)

// clearPatterns match utterances asking to wipe the conversation history.
var clearPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(clear|delete|remove).*(conversation|history|chat)\b`),
	regexp.MustCompile(`\b(conversation|history|chat).*(clear|delete|remove)\b`),
	regexp.MustCompile(`\bforget.*(conversation|everything)\b`),
	regexp.MustCompile(`\breset.*(conversation|chat|history)\b`),
	regexp.MustCompile(`\bclear\s+all\b`),
	regexp.MustCompile(`\bstart\s+fresh\b`),
	regexp.MustCompile(`\bnew\s+conversation\b`),
}

// DetectClearIntent reports whether text asks to wipe the history. Matching
// is case-insensitive.
func DetectClearIntent(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range clearPatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// Lifecycle clears history across both tiers and trims the recency tier.
type Lifecycle struct {
	recency    *RecencyStore
	similarity *SimilarityIndex
	maxEntries int
	logger     *slog.Logger

	mu    sync.Mutex
	users map[string]struct{}
}

// NewLifecycle creates a lifecycle controller.
func NewLifecycle(recency *RecencyStore, similarity *SimilarityIndex, maxEntries int, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		recency:    recency,
		similarity: similarity,
		maxEntries: maxEntries,
		logger:     logger.With("component", "lifecycle"),
		users:      make(map[string]struct{}),
	}
}

// Track registers userID for periodic trimming.
func (l *Lifecycle) Track(userID string) {
	l.mu.Lock()
	l.users[userID] = struct{}{}
	l.mu.Unlock()
}

// Clear deletes the user's history from both tiers. Both deletions are always
// attempted; if one or both fail the result is a *core.PartialClearError.
func (l *Lifecycle) Clear(ctx context.Context, userID string) error {
	var cacheErr, indexErr error
	if l.recency.Available() {
		cacheErr = l.recency.Delete(ctx, userID)
	}
	if l.similarity.Available() {
		indexErr = l.similarity.DeleteAll(ctx, userID)
	}

	l.mu.Lock()
	delete(l.users, userID)
	l.mu.Unlock()

	if cacheErr == nil && indexErr == nil {
		l.logger.Info("cleared conversation history", "user_id", userID)
		return nil
	}

	err := &core.PartialClearError{UserID: userID, CacheErr: cacheErr, IndexErr: indexErr}
	l.logger.Warn("conversation history not fully cleared",
		"user_id", userID,
		"cache_error", cacheErr,
		"index_error", indexErr)
	return err
}

// TrimAll trims every tracked user back to the cap and returns how many
// exchanges were evicted in total.
func (l *Lifecycle) TrimAll(ctx context.Context) int {
	l.mu.Lock()
	users := make([]string, 0, len(l.users))
	for u := range l.users {
		users = append(users, u)
	}
	l.mu.Unlock()

	removed := 0
	for _, u := range users {
		n, err := l.recency.Trim(ctx, u, l.maxEntries)
		if err != nil {
			l.logger.Warn("trim failed", "user_id", u, "error", err)
			continue
		}
		removed += n
	}
	if removed > 0 {
		l.logger.Info("trimmed recency cache", "users", len(users), "removed", removed)
	}
	return removed
}

// Run trims at every interval until ctx is done.
func (l *Lifecycle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.TrimAll(ctx)
		}
	}
}

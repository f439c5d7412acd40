package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/becomeliminal/convctx/core"
)

// RecencyStore keeps the most recent exchanges of each user in one cache hash
// per user, one field per exchange id. Writers for the same user never
// overwrite each other because each exchange has its own field.
type RecencyStore struct {
	cache      HashCache
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger
}

// NewRecencyStore creates a recency store over cache. A nil cache yields a
// store whose reads are always empty.
func NewRecencyStore(cache HashCache, ttl time.Duration, maxEntries int, logger *slog.Logger) *RecencyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecencyStore{
		cache:      cache,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger.With("component", "recency"),
	}
}

// recencyKey is the cache key of a user's hash.
func recencyKey(userID string) string {
	return "conversation_history:user:" + userID
}

// Available reports whether a cache backend is configured.
func (s *RecencyStore) Available() bool {
	return s.cache != nil
}

// Put writes ex under its id, refreshes the hash TTL and trims the hash back
// to the configured cap.
func (s *RecencyStore) Put(ctx context.Context, ex *core.Exchange) error {
	if s.cache == nil {
		return fmt.Errorf("recency put: no cache configured: %w", core.ErrStoreUnavailable)
	}

	value, err := encodeExchange(ex)
	if err != nil {
		return err
	}

	key := recencyKey(ex.UserID)
	if err := s.cache.HSet(ctx, key, ex.ID, value); err != nil {
		return fmt.Errorf("recency put %s: %w: %w", ex.ID, err, core.ErrStoreUnavailable)
	}
	if s.ttl > 0 {
		if err := s.cache.Expire(ctx, key, s.ttl); err != nil {
			return fmt.Errorf("recency expire %s: %w: %w", key, err, core.ErrStoreUnavailable)
		}
	}

	n, err := s.cache.HLen(ctx, key)
	if err != nil {
		s.logger.Warn("recency length check failed", "user_id", ex.UserID, "error", err)
		return nil
	}
	if n > s.maxEntries {
		if _, err := s.Trim(ctx, ex.UserID, s.maxEntries); err != nil {
			s.logger.Warn("recency trim after put failed", "user_id", ex.UserID, "error", err)
		}
	}

	s.logger.Debug("stored exchange", "user_id", ex.UserID, "exchange_id", ex.ID)
	return nil
}

// all fetches and decodes every exchange of a user, newest first.
func (s *RecencyStore) all(ctx context.Context, userID string) ([]*core.Exchange, error) {
	if s.cache == nil {
		return nil, fmt.Errorf("recency read: no cache configured: %w", core.ErrStoreUnavailable)
	}

	fields, err := s.cache.HGetAll(ctx, recencyKey(userID))
	if err != nil {
		return nil, fmt.Errorf("recency read %s: %w: %w", userID, err, core.ErrStoreUnavailable)
	}

	exchanges := make([]*core.Exchange, 0, len(fields))
	for field, value := range fields {
		ex, err := decodeExchange(field, value)
		if err != nil {
			s.logger.Warn("skipping unreadable cache entry", "user_id", userID, "field", field, "error", err)
			continue
		}
		exchanges = append(exchanges, ex)
	}

	sortNewestFirst(exchanges)
	return exchanges, nil
}

// ListRecent returns at most limit exchanges of a user, newest first.
// An expired or missing hash yields an empty slice. A cache failure is
// logged and also yields an empty slice.
func (s *RecencyStore) ListRecent(ctx context.Context, userID string, limit int) []*core.Exchange {
	exchanges, err := s.all(ctx, userID)
	if err != nil {
		s.logger.Warn("recent exchanges unavailable", "user_id", userID, "error", err)
		return nil
	}
	if limit >= 0 && len(exchanges) > limit {
		exchanges = exchanges[:limit]
	}
	return exchanges
}

// Get returns one cached exchange, or core.ErrNotFound.
func (s *RecencyStore) Get(ctx context.Context, userID, id string) (*core.Exchange, error) {
	exchanges, err := s.all(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, ex := range exchanges {
		if ex.ID == id {
			return ex, nil
		}
	}
	return nil, fmt.Errorf("recency get %s: %w", id, core.ErrNotFound)
}

// Count returns how many exchanges are cached for a user.
func (s *RecencyStore) Count(ctx context.Context, userID string) (int, error) {
	if s.cache == nil {
		return 0, fmt.Errorf("recency count: no cache configured: %w", core.ErrStoreUnavailable)
	}
	n, err := s.cache.HLen(ctx, recencyKey(userID))
	if err != nil {
		return 0, fmt.Errorf("recency count %s: %w: %w", userID, err, core.ErrStoreUnavailable)
	}
	return n, nil
}

// Delete removes the user's whole hash.
func (s *RecencyStore) Delete(ctx context.Context, userID string) error {
	if s.cache == nil {
		return fmt.Errorf("recency delete: no cache configured: %w", core.ErrStoreUnavailable)
	}
	if err := s.cache.Del(ctx, recencyKey(userID)); err != nil {
		return fmt.Errorf("recency delete %s: %w: %w", userID, err, core.ErrStoreUnavailable)
	}
	return nil
}

// Trim removes the oldest exchanges until at most maxCount remain and returns
// how many were removed. The cache has no ordering, so this reads the whole
// hash and sorts by timestamp. Concurrent writers may leave one extra entry.
func (s *RecencyStore) Trim(ctx context.Context, userID string, maxCount int) (int, error) {
	exchanges, err := s.all(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(exchanges) <= maxCount {
		return 0, nil
	}

	stale := exchanges[maxCount:]
	fields := make([]string, len(stale))
	for i, ex := range stale {
		fields[i] = ex.ID
	}
	if err := s.cache.HDel(ctx, recencyKey(userID), fields...); err != nil {
		return 0, fmt.Errorf("recency trim %s: %w: %w", userID, err, core.ErrStoreUnavailable)
	}

	s.logger.Debug("trimmed recent exchanges", "user_id", userID, "removed", len(fields))
	return len(fields), nil
}

// sortNewestFirst orders exchanges by timestamp descending, id as tie-break.
func sortNewestFirst(exchanges []*core.Exchange) {
	sort.SliceStable(exchanges, func(i, j int) bool {
		if exchanges[i].Timestamp.Equal(exchanges[j].Timestamp) {
			return exchanges[i].ID > exchanges[j].ID
		}
		return exchanges[i].Timestamp.After(exchanges[j].Timestamp)
	})
}

// sortOldestFirst orders exchanges by timestamp ascending, id as tie-break.
func sortOldestFirst(exchanges []*core.Exchange) {
	sort.SliceStable(exchanges, func(i, j int) bool {
		if exchanges[i].Timestamp.Equal(exchanges[j].Timestamp) {
			return exchanges[i].ID < exchanges[j].ID
		}
		return exchanges[i].Timestamp.Before(exchanges[j].Timestamp)
	})
}

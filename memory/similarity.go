package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/becomeliminal/convctx/core"
)

// SimilarityIndex stores every exchange as a vector and answers
// nearest-neighbour queries scoped to one user. Entries never expire; they
// are removed only by DeleteAll.
type SimilarityIndex struct {
	index    VectorIndex
	embedder Embedder
	logger   *slog.Logger
}

// NewSimilarityIndex creates the index adapter. Either collaborator may be
// nil, in which case writes fail with a tagged error and reads are empty.
func NewSimilarityIndex(index VectorIndex, embedder Embedder, logger *slog.Logger) *SimilarityIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimilarityIndex{
		index:    index,
		embedder: embedder,
		logger:   logger.With("component", "similarity"),
	}
}

// Available reports whether both the index and the embedder are configured.
func (s *SimilarityIndex) Available() bool {
	return s.index != nil && s.embedder != nil
}

func (s *SimilarityIndex) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured: %w", core.ErrEmbeddingUnavailable)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w: %w", err, core.ErrEmbeddingUnavailable)
	}
	return vec, nil
}

// Upsert embeds "User: {message}\nBot: {response}" and stores it under ex.ID.
func (s *SimilarityIndex) Upsert(ctx context.Context, ex *core.Exchange) error {
	if s.index == nil {
		return fmt.Errorf("index upsert: no index configured: %w", core.ErrStoreUnavailable)
	}
	vec, err := s.embed(ctx, ex.EmbeddingText())
	if err != nil {
		return fmt.Errorf("index upsert %s: %w", ex.ID, err)
	}
	return s.upsertVector(ctx, ex, vec)
}

func (s *SimilarityIndex) upsertVector(ctx context.Context, ex *core.Exchange, vec []float32) error {
	point, err := exchangePoint(ex, vec)
	if err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, point); err != nil {
		return fmt.Errorf("index upsert %s: %w: %w", ex.ID, err, core.ErrStoreUnavailable)
	}
	s.logger.Debug("indexed exchange", "user_id", ex.UserID, "exchange_id", ex.ID)
	return nil
}

// Query returns up to limit exchanges of userID whose similarity to vector is
// at least minScore, best first, with RelevanceScore set. Failures are logged
// and produce an empty result.
func (s *SimilarityIndex) Query(ctx context.Context, userID string, vector []float32, limit int, minScore float64) []*core.Exchange {
	exchanges, err := s.search(ctx, Query{
		OwnerID:  userID,
		Vector:   vector,
		Limit:    limit,
		MinScore: float32(minScore),
	})
	if err != nil {
		s.logger.Warn("similarity query failed", "user_id", userID, "error", err)
		return nil
	}
	return exchanges
}

// QueryText embeds text and runs Query.
func (s *SimilarityIndex) QueryText(ctx context.Context, userID, text string, limit int, minScore float64) []*core.Exchange {
	vec, err := s.embed(ctx, text)
	if err != nil {
		s.logger.Warn("similarity query embedding failed", "user_id", userID, "error", err)
		return nil
	}
	return s.Query(ctx, userID, vec, limit, minScore)
}

func (s *SimilarityIndex) search(ctx context.Context, q Query) ([]*core.Exchange, error) {
	if s.index == nil {
		return nil, fmt.Errorf("index search: no index configured: %w", core.ErrStoreUnavailable)
	}
	if q.Limit <= 0 || len(q.Vector) == 0 {
		return nil, nil
	}

	hits, err := s.index.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("index search: %w: %w", err, core.ErrStoreUnavailable)
	}

	exchanges := make([]*core.Exchange, 0, len(hits))
	for i := range hits {
		hit := &hits[i]
		// Backends filter by owner already; this guards against a
		// misbehaving one leaking another user's history.
		if hit.OwnerID != q.OwnerID {
			s.logger.Error("index returned foreign exchange", "user_id", q.OwnerID, "owner_id", hit.OwnerID, "exchange_id", hit.ID)
			continue
		}
		ex, err := exchangeFromPoint(&hit.Point)
		if err != nil {
			s.logger.Warn("skipping unreadable index entry", "exchange_id", hit.ID, "error", err)
			continue
		}
		ex.RelevanceScore = float64(hit.Score)
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

// DeleteAll removes every indexed exchange of a user.
func (s *SimilarityIndex) DeleteAll(ctx context.Context, userID string) error {
	if s.index == nil {
		return fmt.Errorf("index delete: no index configured: %w", core.ErrStoreUnavailable)
	}
	if err := s.index.DeleteOwner(ctx, userID); err != nil {
		return fmt.Errorf("index delete %s: %w: %w", userID, err, core.ErrStoreUnavailable)
	}
	return nil
}

// Get returns one indexed exchange, or core.ErrNotFound.
func (s *SimilarityIndex) Get(ctx context.Context, userID, id string) (*core.Exchange, []float32, error) {
	if s.index == nil {
		return nil, nil, fmt.Errorf("index get: no index configured: %w", core.ErrStoreUnavailable)
	}
	point, err := s.index.Retrieve(ctx, userID, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil, fmt.Errorf("index get %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("index get %s: %w: %w", id, err, core.ErrStoreUnavailable)
	}
	ex, err := exchangeFromPoint(point)
	if err != nil {
		return nil, nil, err
	}
	return ex, point.Vector, nil
}

// PatchResponse replaces the response of an indexed exchange and recomputes
// its vector so later queries match the new text. If the embedder is down the
// old vector is kept.
func (s *SimilarityIndex) PatchResponse(ctx context.Context, userID, id, newResponse string) (*core.Exchange, error) {
	ex, vec, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	ex.Response = newResponse
	if fresh, err := s.embed(ctx, ex.EmbeddingText()); err != nil {
		s.logger.Warn("keeping stale vector for patched exchange", "exchange_id", id, "error", err)
	} else {
		vec = fresh
	}

	if err := s.upsertVector(ctx, ex, vec); err != nil {
		return nil, err
	}
	return ex, nil
}

// List returns the user's indexed exchanges oldest first.
func (s *SimilarityIndex) List(ctx context.Context, userID string) ([]*core.Exchange, error) {
	if s.index == nil {
		return nil, fmt.Errorf("index list: no index configured: %w", core.ErrStoreUnavailable)
	}
	points, err := s.index.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("index list %s: %w: %w", userID, err, core.ErrStoreUnavailable)
	}
	exchanges := make([]*core.Exchange, 0, len(points))
	for i := range points {
		ex, err := exchangeFromPoint(&points[i])
		if err != nil {
			s.logger.Warn("skipping unreadable index entry", "exchange_id", points[i].ID, "error", err)
			continue
		}
		exchanges = append(exchanges, ex)
	}
	sortOldestFirst(exchanges)
	return exchanges, nil
}

// Count returns how many exchanges are indexed for a user.
func (s *SimilarityIndex) Count(ctx context.Context, userID string) (int, error) {
	exchanges, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(exchanges), nil
}

package chromem

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/convctx/core"
	"github.com/becomeliminal/convctx/memory"
)

// Config configures the chromem index.
type Config struct {
	// Path enables persistence under this directory. Empty keeps the
	// index in memory only.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Dimensions is the vector size, used to build the unit query vector for
	// List. When zero it is read from an existing collection or learned from
	// the first Upsert.
	Dimensions int

	Logger *slog.Logger
}

// Store wraps chromem-go, a pure Go embedded vector database.
// Each owner gets their own collection, and every query also filters on
// the owner_id metadata key.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	dims        int
	logger      *slog.Logger
	mu          sync.RWMutex
}

var _ memory.VectorIndex = (*Store)(nil)

// New creates an in-memory store.
func New() (*Store, error) {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a store, persistent when cfg.Path is set.
func NewWithConfig(cfg Config) (*Store, error) {
	db := chromem.NewDB()
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db %s: %w", cfg.Path, err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		dims:        cfg.Dimensions,
		logger:      logger.With("component", "chromem"),
	}, nil
}

func collectionName(ownerID string) string {
	return "user_" + ownerID
}

// collection returns the owner's collection, creating it when create is set.
// A nil collection with nil error means the owner has nothing stored.
func (s *Store) collection(ownerID string, create bool) (*chromem.Collection, error) {
	if ownerID == "" {
		return nil, memory.ErrMissingOwner
	}

	s.mu.RLock()
	col, ok := s.collections[ownerID]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[ownerID]; ok {
		return col, nil
	}

	// A persistent db may already hold the collection from a previous run.
	if col := s.db.GetCollection(collectionName(ownerID), nil); col != nil {
		if s.dims == 0 && col.Count() > 0 {
			dims, err := s.storedDimensions(collectionName(ownerID))
			if err != nil {
				return nil, err
			}
			s.dims = dims
		}
		s.collections[ownerID] = col
		return col, nil
	}
	if !create {
		return nil, nil
	}

	col, err := s.db.GetOrCreateCollection(collectionName(ownerID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[ownerID] = col
	return col, nil
}

// exportedDB mirrors the gob layout chromem writes on export.
type exportedDB struct {
	Collections map[string]*struct {
		Name      string
		Metadata  map[string]string
		Documents map[string]*chromem.Document
	}
}

// storedDimensions reads the embedding length of a document already held in
// the named collection. chromem keeps vector size private, so the collection
// is exported and decoded once when it is first opened.
func (s *Store) storedDimensions(name string) (int, error) {
	var buf bytes.Buffer
	if err := s.db.ExportToWriter(&buf, false, "", name); err != nil {
		return 0, fmt.Errorf("export collection %s: %w", name, err)
	}
	var exported exportedDB
	if err := gob.NewDecoder(&buf).Decode(&exported); err != nil {
		return 0, fmt.Errorf("decode collection %s: %w", name, err)
	}
	for _, c := range exported.Collections {
		for _, doc := range c.Documents {
			if len(doc.Embedding) > 0 {
				s.logger.Debug("learned vector dimensions", "collection", name, "dimensions", len(doc.Embedding))
				return len(doc.Embedding), nil
			}
		}
	}
	return 0, nil
}

// Upsert stores a point. chromem replaces documents with the same ID.
func (s *Store) Upsert(ctx context.Context, p memory.Point) error {
	col, err := s.collection(p.OwnerID, true)
	if err != nil {
		return err
	}

	metadata := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata[memory.MetaOwnerID] = p.OwnerID

	err = col.AddDocument(ctx, chromem.Document{
		ID:        p.ID,
		Content:   p.Content,
		Embedding: p.Vector,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	s.mu.Lock()
	if s.dims == 0 {
		s.dims = len(p.Vector)
	}
	s.mu.Unlock()
	return nil
}

// Search queries the owner's collection by cosine similarity.
func (s *Store) Search(ctx context.Context, q memory.Query) ([]memory.ScoredPoint, error) {
	col, err := s.collection(q.OwnerID, false)
	if err != nil {
		return nil, err
	}
	if col == nil || q.Limit <= 0 {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size.
	n := q.Limit
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	where := map[string]string{memory.MetaOwnerID: q.OwnerID}
	for k, v := range q.Where {
		where[k] = v
	}

	results, err := col.QueryEmbedding(ctx, q.Vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	points := make([]memory.ScoredPoint, 0, len(results))
	for _, r := range results {
		if r.Similarity < q.MinScore {
			continue
		}
		points = append(points, memory.ScoredPoint{
			Point: toPoint(q.OwnerID, r.ID, r.Content, r.Embedding, r.Metadata),
			Score: r.Similarity,
		})
	}
	s.logger.Debug("query", "owner_id", q.OwnerID, "limit", q.Limit, "raw", len(results), "kept", len(points))
	return points, nil
}

// Retrieve returns one point by id.
func (s *Store) Retrieve(ctx context.Context, ownerID, id string) (*memory.Point, error) {
	col, err := s.collection(ownerID, false)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, fmt.Errorf("retrieve %s: %w", id, core.ErrNotFound)
	}
	// GetByID only fails for an empty or unknown id.
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %v: %w", id, err, core.ErrNotFound)
	}
	if doc.Metadata[memory.MetaOwnerID] != ownerID {
		return nil, fmt.Errorf("retrieve %s: %w", id, core.ErrNotFound)
	}
	p := toPoint(ownerID, doc.ID, doc.Content, doc.Embedding, doc.Metadata)
	return &p, nil
}

// DeleteOwner drops the owner's collection.
func (s *Store) DeleteOwner(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return memory.ErrMissingOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(collectionName(ownerID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(s.collections, ownerID)
	return nil
}

// List returns every point of the owner. chromem has no scan API, so this
// runs a full-size query with a unit vector.
func (s *Store) List(ctx context.Context, ownerID string) ([]memory.Point, error) {
	col, err := s.collection(ownerID, false)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, nil
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	s.mu.RLock()
	dims := s.dims
	s.mu.RUnlock()
	if dims == 0 {
		return nil, fmt.Errorf("list %s: vector dimensions unknown", ownerID)
	}
	unit := make([]float32, dims)
	unit[0] = 1

	results, err := col.QueryEmbedding(ctx, unit, n, map[string]string{memory.MetaOwnerID: ownerID}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem list: %w", err)
	}
	points := make([]memory.Point, 0, len(results))
	for _, r := range results {
		points = append(points, toPoint(ownerID, r.ID, r.Content, r.Embedding, r.Metadata))
	}
	return points, nil
}

// Close releases resources. Persistent databases write on every change, so
// there is nothing to flush.
func (s *Store) Close() error {
	return nil
}

func toPoint(ownerID, id, content string, vec []float32, metadata map[string]string) memory.Point {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return memory.Point{
		ID:       id,
		OwnerID:  ownerID,
		Vector:   vec,
		Content:  content,
		Metadata: md,
	}
}

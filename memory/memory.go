package memory

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/becomeliminal/convctx/core"
)

// ErrMissingOwner is returned by VectorIndex implementations for queries
// without an owner. Every similarity search is scoped to exactly one user.
var ErrMissingOwner = errors.New("vector query requires an owner id")

// Metadata keys stored alongside every indexed exchange.
const (
	MetaOwnerID     = "owner_id"
	MetaExchangeID  = "exchange_id"
	MetaIntent      = "intent"
	MetaSessionID   = "session_id"
	MetaTurn        = "turn"
	MetaContextUsed = "context_used"
	MetaTimestamp   = "timestamp"
	MetaTopics      = "topics"
)

// HashCache is a key-value cache with TTL and per-key hash fields.
// Implementations: ristretto (in-process), redis (networked).
//
// An expired key must behave exactly like a missing one: HGetAll returns an
// empty map and HLen returns zero, without error.
type HashCache interface {
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// Point is one vector with its payload.
type Point struct {
	ID       string
	OwnerID  string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// ScoredPoint is a search hit. Score is cosine similarity in [-1, 1].
type ScoredPoint struct {
	Point
	Score float32
}

// Query describes a nearest-neighbour search.
type Query struct {
	// OwnerID is mandatory; results never cross owners.
	OwnerID string

	Vector   []float32
	Limit    int
	MinScore float32

	// Where holds optional exact-match metadata filters.
	Where map[string]string
}

// VectorIndex is the durable similarity index.
// Implementations: chromem (embedded), sqlite (durable file).
type VectorIndex interface {
	// Upsert stores or replaces a point by ID.
	Upsert(ctx context.Context, p Point) error

	// Search returns points sorted by similarity (highest first), at most
	// q.Limit of them, all with Score >= q.MinScore.
	Search(ctx context.Context, q Query) ([]ScoredPoint, error)

	// Retrieve returns one point by owner and id, or core.ErrNotFound.
	Retrieve(ctx context.Context, ownerID, id string) (*Point, error)

	// DeleteOwner removes every point of one owner.
	DeleteOwner(ctx context.Context, ownerID string) error

	// List returns every point of one owner in no particular order.
	List(ctx context.Context, ownerID string) ([]Point, error)

	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: hashing (offline, lexical), onnx (all-MiniLM-L6-v2),
// cached (memoizing wrapper). Embed must be deterministic for identical input.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// KeywordExtractor is the heuristic text analysis used for topics and chunk
// keywords. Relevance scoring does not use it.
type KeywordExtractor interface {
	// Keywords returns up to limit frequent content words, most frequent first.
	Keywords(text string, limit int) []string

	// CapitalizedWords returns capitalized words longer than three letters,
	// lowercased, in order of appearance.
	CapitalizedWords(text string) []string

	// Tags returns short topic tags for an exchange: its intent first, then
	// any matching domain tags.
	Tags(ex *core.Exchange) []string
}

// Manager is the inbound API of the context engine, consumed by the
// message-handling layer.
type Manager interface {
	// AddExchange records one turn in both tiers and returns its id.
	AddExchange(ctx context.Context, in ExchangeInput) (string, error)

	// GetContext assembles the context for the current message.
	// It never fails; an unavailable backend yields a smaller or empty context.
	GetContext(ctx context.Context, userID, currentMessage string, includeSimilarity bool) *AssembledContext

	// ProcessContext wraps GetContext into a summary, topic and confidence bundle.
	ProcessContext(ctx context.Context, userID, currentMessage string, maxChars int) *ContextBundle

	// ClearHistory deletes the user's exchanges from both tiers.
	ClearHistory(ctx context.Context, userID string) error

	// GetSummary returns conversation statistics for a user.
	GetSummary(ctx context.Context, userID string) *Summary

	// DetectClearIntent reports whether text asks to wipe history.
	DetectClearIntent(text string) bool

	// PatchResponse replaces the response of an existing exchange in both tiers.
	PatchResponse(ctx context.Context, id, userID, newResponse string) error

	// Export writes the user's indexed exchanges in the given format.
	Export(ctx context.Context, userID string, w io.Writer, format ExportFormat) error
}

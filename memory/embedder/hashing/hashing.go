package hashing

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/becomeliminal/convctx/memory"
)

// DefaultDimensions matches all-MiniLM-L6-v2 so indexes built with either
// embedder have the same shape.
const DefaultDimensions = 384

// ErrNoTokens is returned for text without letters or digits.
var ErrNoTokens = errors.New("text has no tokens")

// Embedder is an offline lexical embedder. Each lowercase token is hashed
// into one of Dimensions buckets with a hashed sign, term counts are summed
// and the result is L2 normalized. Texts sharing words therefore have a
// positive cosine similarity, which is enough for relevance ranking without
// a model.
type Embedder struct {
	dimensions int
}

var _ memory.Embedder = (*Embedder)(nil)

// New creates a hashing embedder with DefaultDimensions.
func New() *Embedder {
	return NewWithDimensions(DefaultDimensions)
}

// NewWithDimensions creates a hashing embedder of the given size.
func NewWithDimensions(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dimensions: dims}
}

// Embed returns the hashed term-frequency vector of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	vec := make([]float32, e.dimensions)
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dimensions))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return memory.Normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

//go:build !onnx

package onnx

import (
	"context"

	"github.com/becomeliminal/convctx/memory"
)

// Embedder is unavailable in builds without the onnx tag.
type Embedder struct{}

var _ memory.Embedder = (*Embedder)(nil)

// New always fails with ErrNotBuilt.
func New(cfg Config) (*Embedder, error) {
	return nil, ErrNotBuilt
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrNotBuilt
}

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }

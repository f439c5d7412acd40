package onnx

import "errors"

// ErrNotBuilt is returned by New when the binary was built without the
// onnx build tag.
var ErrNotBuilt = errors.New("onnx embedder not built: rebuild with -tags onnx")

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath string

	// Dimensions is the embedding vector size (default: 384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequence is the token window (default: 128).
	MaxSequence int
}

func (c *Config) withDefaults() {
	if c.Dimensions == 0 {
		c.Dimensions = 384
	}
	if c.MaxSequence == 0 {
		c.MaxSequence = 128
	}
}

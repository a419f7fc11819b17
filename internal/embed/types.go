// Package embed computes vector embeddings for chunks and queries.
//
// Providers: a deterministic offline static embedder, Ollama, and any
// OpenAI-compatible endpoint. Decorators add an in-process LRU cache and an
// optional Redis cache shared between processes.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MaxBatchSize bounds a single provider request.
	MaxBatchSize = 256

	// DefaultBatchSize is the ingestion batch size.
	DefaultBatchSize = 32

	// DefaultTimeout bounds one provider request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries for transient provider failures.
	DefaultMaxRetries = 3

	// StaticDimensions is the default dimension of the static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text. The same text must always
// map to the same vector, and index and query embeddings share one space.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier recorded in the index.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors are returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

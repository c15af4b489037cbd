// Package embed turns text into fixed-length vectors. Documents and
// queries are embedded separately so models with asymmetric prompts can
// prefix them differently.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultDimensions is the vector size of the default static embedder
	// and the fallback when a remote model cannot report its own.
	DefaultDimensions = 768

	// DefaultBatchSize bounds texts per remote embedding request.
	DefaultBatchSize = 64

	// DefaultTimeout is the HTTP timeout per remote request.
	DefaultTimeout = 60 * time.Second
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding of a search query.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates document embeddings, one per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
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

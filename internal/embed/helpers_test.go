package embed

import (
	"context"
	"sync/atomic"
)

// countingEmbedder records how many texts reach it.
type countingEmbedder struct {
	inner   Embedder
	queries atomic.Int64
	docs    atomic.Int64
	closed  atomic.Bool
}

func newCountingEmbedder() *countingEmbedder {
	return &countingEmbedder{inner: NewStaticEmbedder(16)}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.queries.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.docs.Add(int64(len(texts)))
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int   { return c.inner.Dimensions() }
func (c *countingEmbedder) ModelName() string { return "counting" }
func (c *countingEmbedder) Close() error {
	c.closed.Store(true)
	return nil
}

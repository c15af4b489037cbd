package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultQueryCacheSize is the default number of query embeddings to cache.
const DefaultQueryCacheSize = 256

// CachedEmbedder wraps an Embedder with an in-memory LRU for query
// embeddings and an optional on-disk cache for document embeddings, so
// repeated queries and reindexing unchanged chunks skip the model.
type CachedEmbedder struct {
	inner   Embedder
	queries *lru.Cache[string, []float32]
	disk    *DiskCache
}

// Verify interface implementation at compile time
var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder. disk may be nil. The
// embedder owns disk and closes it with itself.
func NewCachedEmbedder(inner Embedder, cacheSize int, disk *DiskCache) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultQueryCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, queries: cache, disk: disk}
}

// cacheKey generates a unique key from text and model.
func (c *CachedEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(hash[:])
}

// Embed returns the cached query embedding if available.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.queries.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.queries.Add(key, vec)
	return vec, nil
}

// EmbedBatch embeds only texts missing from the disk cache and stores
// the new vectors. Without a disk cache it passes through.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.disk == nil || len(texts) == 0 {
		return c.inner.EmbedBatch(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}
	results := c.disk.GetMany(keys)

	var missIdx []int
	var missTexts []string
	for i, vec := range results {
		if vec == nil || len(vec) != c.inner.Dimensions() {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	missKeys := make([]string, len(missIdx))
	for j, idx := range missIdx {
		results[idx] = fresh[j]
		missKeys[j] = keys[idx]
	}
	if err := c.disk.PutMany(missKeys, fresh); err != nil {
		slog.Warn("embedding_cache_write_failed", slog.String("error", err.Error()))
	}

	slog.Debug("embedding_cache_batch",
		slog.Int("hits", len(texts)-len(missTexts)),
		slog.Int("misses", len(missTexts)))
	return results, nil
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Close closes the disk cache and the inner embedder.
func (c *CachedEmbedder) Close() error {
	if c.disk != nil {
		if err := c.disk.Close(); err != nil {
			slog.Warn("embedding_cache_close_failed", slog.String("error", err.Error()))
		}
	}
	return c.inner.Close()
}

// Inner returns the underlying embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}

package embed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_QueryLRU(t *testing.T) {
	// Given
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 2, nil)
	ctx := context.Background()

	// When
	first, err := c.Embed(ctx, "momentum")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "momentum")
	require.NoError(t, err)

	// Then
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.queries.Load())
}

func TestCachedEmbedder_DiskCacheSkipsKnownTexts(t *testing.T) {
	// Given
	path := filepath.Join(t.TempDir(), "embeddings.bbolt")
	disk, err := OpenDiskCache(path)
	require.NoError(t, err)
	inner := newCountingEmbedder()
	c := NewCachedEmbedder(inner, 0, disk)
	ctx := context.Background()

	_, err = c.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, int64(2), inner.docs.Load())

	// When
	vecs, err := c.EmbedBatch(ctx, []string{"beta", "gamma", "alpha"})

	// Then
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, int64(3), inner.docs.Load(), "only gamma is new")
	want, _ := inner.inner.EmbedBatch(ctx, []string{"beta", "gamma", "alpha"})
	assert.Equal(t, want, vecs)
	assert.Equal(t, 3, disk.Len())

	require.NoError(t, c.Close())
	assert.True(t, inner.closed.Load())
}

func TestDiskCache_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.bbolt")
	d, err := OpenDiskCache(path)
	require.NoError(t, err)
	require.NoError(t, d.PutMany([]string{"k"}, [][]float32{{0.5, -1.25, 3}}))
	require.NoError(t, d.Close())

	d, err = OpenDiskCache(path)
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	got := d.GetMany([]string{"k", "missing"})

	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.5, -1.25, 3}, got[0])
	assert.Nil(t, got[1])
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_OpensOnePerRoot(t *testing.T) {
	// Given
	cache := t.TempDir()
	pool := NewPool(func(root string) string { return filepath.Join(cache, filepath.Base(root)) })
	defer pool.Close()

	// When
	a1, err := pool.For("/kb/a")
	require.NoError(t, err)
	a2, err := pool.For("/kb/a")
	require.NoError(t, err)
	b, err := pool.For("/kb/b")
	require.NoError(t, err)

	// Then
	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	_, err = os.Stat(filepath.Join(cache, "a", DBFileName))
	assert.NoError(t, err)
}

func TestPool_Release(t *testing.T) {
	// Given
	cache := t.TempDir()
	pool := NewPool(func(root string) string { return filepath.Join(cache, filepath.Base(root)) })
	defer pool.Close()
	s, err := pool.For("/kb/a")
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(context.Background(), "knowledge_a", 2))

	// When
	require.NoError(t, pool.Release("/kb/a"))
	require.NoError(t, pool.Release("/kb/a"), "releasing twice is a no-op")
	reopened, err := pool.For("/kb/a")
	require.NoError(t, err)

	// Then
	assert.NotSame(t, s, reopened)
	has, err := reopened.HasCollection(context.Background(), "knowledge_a")
	require.NoError(t, err)
	assert.True(t, has)
}

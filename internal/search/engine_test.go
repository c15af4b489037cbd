package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/filetype"
)

func TestNewEngine_NilDependency(t *testing.T) {
	f := newFixture(t)

	_, err := NewEngine(f.cfg, nil, f.pool, f.embedder)

	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestSearch_RanksAndLimits(t *testing.T) {
	// Given two chunks at similarity 0.9 and 0.6
	f := newFixture(t)
	root := f.seed(t,
		entity("close", []float32{0.9, 0.43589, 0}, "[]"),
		entity("far", []float32{0.6, 0.8, 0}, "[]"),
	)
	e := f.engine(t)

	// When searching with limit 1
	results, err := e.Search(context.Background(), root, "momentum", Options{Limit: 1, Threshold: 0.5})

	// Then only the closer chunk is returned
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close.md", results[0].Filename)
	assert.Equal(t, "/notes/close.md", results[0].Path)
	assert.Equal(t, "text of close", results[0].Text)
	assert.InDelta(t, 0.9, results[0].Score, 1e-3)
	assert.Empty(t, results[0].KnowledgeBase)
}

func TestSearch_ThresholdIsInclusive(t *testing.T) {
	// Given chunks at similarity 0.5 and 0.3
	f := newFixture(t)
	root := f.seed(t,
		entity("edge", []float32{0.5, 0.8660254, 0}, "[]"),
		entity("below", []float32{0.3, 0.9539392, 0}, "[]"),
	)
	e := f.engine(t)

	// When searching with threshold 0.5
	results, err := e.Search(context.Background(), root, "q", Options{Limit: 10, Threshold: 0.5})

	// Then the chunk exactly at the threshold is kept
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "edge.md", results[0].Filename)
	assert.Equal(t, 0.5, results[0].Score)
}

func TestSearch_TagFilter(t *testing.T) {
	// Given two chunks, only one tagged #momentum
	f := newFixture(t)
	root := f.seed(t,
		entity("tagged", []float32{0.8, 0.6, 0}, `["#momentum"]`),
		entity("plain", []float32{1, 0, 0}, `["#other"]`),
	)
	e := f.engine(t)

	// When filtering by the tag without its hash
	results, err := e.Search(context.Background(), root, "q", Options{Tags: []string{"momentum"}, Limit: 10})

	// Then only the tagged chunk matches
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged.md", results[0].Filename)
}

func TestSearch_TagFilterMatchesSubstring(t *testing.T) {
	// Given a chunk tagged #backtest
	f := newFixture(t)
	root := f.seed(t,
		entity("tagged", []float32{0.8, 0.6, 0}, `["#backtest"]`),
		entity("plain", []float32{1, 0, 0}, `["#other"]`),
	)
	e := f.engine(t)

	// When filtering by a prefix of the tag
	results, err := e.Search(context.Background(), root, "q", Options{Tags: []string{"#back"}, Limit: 10})

	// Then the tagged chunk matches
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged.md", results[0].Filename)
}

func TestSearch_MetadataComparison(t *testing.T) {
	// Given chunks with and without a sharpe value
	f := newFixture(t)
	high := entity("high", []float32{0.9, 0.43589, 0}, "[]")
	high.Sharpe = ptr(2.1)
	low := entity("low", []float32{1, 0, 0}, "[]")
	low.Sharpe = ptr(0.4)
	none := entity("none", []float32{1, 0, 0}, "[]")
	root := f.seed(t, high, low, none)
	e := f.engine(t)

	// When filtering on sharpe > 1.5
	results, err := e.Search(context.Background(), root, "q", Options{
		Metadata: map[string]any{"sharpe": "> 1.5"},
		Limit:    10,
	})

	// Then only the chunk above the bound matches
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "high.md", results[0].Filename)
}

func TestSearch_Errors(t *testing.T) {
	f := newFixture(t)
	root := f.seed(t, entity("a", []float32{1, 0, 0}, "[]"))

	t.Run("empty query", func(t *testing.T) {
		_, err := f.engine(t).Search(context.Background(), root, "  ", Options{})
		assert.Equal(t, kberrors.ErrCodeQueryEmpty, kberrors.GetCode(err))
	})

	t.Run("not indexed", func(t *testing.T) {
		other := t.TempDir()
		_, err := f.engine(t).Search(context.Background(), other, "q", Options{})
		require.ErrorIs(t, err, kberrors.ErrNotIndexed)
		assert.NoDirExists(t, f.tracking.Dir(other))
	})

	t.Run("path denied", func(t *testing.T) {
		f.cfg.Paths.AllowedDirs = []string{t.TempDir()}
		defer func() { f.cfg.Paths.AllowedDirs = nil }()

		_, err := f.engine(t).Search(context.Background(), root, "q", Options{})
		assert.ErrorIs(t, err, kberrors.ErrPathDenied)
	})

	t.Run("malformed filter", func(t *testing.T) {
		_, err := f.engine(t).Search(context.Background(), root, "q", Options{
			Metadata: map[string]any{"sharpe": ">="},
		})
		require.ErrorIs(t, err, kberrors.ErrMalformedFilter)
		assert.Zero(t, f.embedder.queries.Load())
	})
}

func TestSearch_UndecodableMetadataFallsBack(t *testing.T) {
	// Given a chunk whose metadata_json is not valid JSON
	f := newFixture(t)
	bad := entity("bad", []float32{1, 0, 0}, "[]")
	bad.MetadataJSON = "{not json"
	root := f.seed(t, bad)

	// When searching
	results, err := f.engine(t).Search(context.Background(), root, "q", Options{})

	// Then the result carries minimal metadata
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, string(filetype.Unknown), results[0].Metadata.FileType)
	assert.NotNil(t, results[0].Metadata.Tags)
}

func TestSearch_RefreshesTrackedRootsOnly(t *testing.T) {
	// Given a refresher that fails
	f := newFixture(t)
	root := f.seed(t, entity("a", []float32{1, 0, 0}, "[]"))
	ref := &stubRefresher{err: errors.New("disk on fire")}
	e := f.engine(t, WithRefresher(ref))

	// When searching an indexed root
	results, err := e.Search(context.Background(), root, "q", Options{})

	// Then the refresh ran and its failure did not block the search
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(1), ref.calls.Load())

	// When searching a root that was never indexed
	_, err = e.Search(context.Background(), t.TempDir(), "q", Options{})

	// Then no refresh is attempted
	assert.ErrorIs(t, err, kberrors.ErrNotIndexed)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestScore(t *testing.T) {
	tests := []struct {
		distance float32
		want     float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{1.7, 0},
		{-0.2, 1},
		{0.123456, 0.8765},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Score(tt.distance), 1e-9, "distance %v", tt.distance)
	}
}

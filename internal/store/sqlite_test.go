package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/filter"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entity(id, path string, vec []float32) Entity {
	return Entity{
		ID:           id,
		Text:         "text of " + id,
		Filename:     filepath.Base(path),
		Path:         path,
		Vector:       vec,
		TagsStr:      `["#idea"]`,
		MetadataJSON: `{"file_type":"md"}`,
	}
}

func float(f float64) *float64 { return &f }

func TestCollections_Lifecycle(t *testing.T) {
	// Given
	ctx := context.Background()
	s := newTestStore(t)

	// When
	has, err := s.HasCollection(ctx, "knowledge_a")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 3))
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 3), "same dimension is a no-op")
	err = s.CreateCollection(ctx, "knowledge_a", 4)

	// Then
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)

	has, err = s.HasCollection(ctx, "knowledge_a")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{entity("1", "/kb/a.md", []float32{1, 0, 0})}))
	infos, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []CollectionInfo{{Name: "knowledge_a", Dimensions: 3, Count: 1}}, infos)

	require.NoError(t, s.DropCollection(ctx, "knowledge_a"))
	require.NoError(t, s.DropCollection(ctx, "knowledge_a"), "dropping twice is a no-op")
	has, err = s.HasCollection(ctx, "knowledge_a")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCollectionName_Validated(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateCollection(context.Background(), "bad-name; drop", 3)

	assert.Error(t, err)
}

func TestInsert_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Insert(ctx, "knowledge_missing", []Entity{entity("1", "/a", []float32{1, 0, 0})})
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 3))
	err = s.Insert(ctx, "knowledge_a", []Entity{entity("1", "/a", []float32{1, 0})})
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestSearch_RanksByCosineDistance(t *testing.T) {
	// Given
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 3))
	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{
		entity("x", "/kb/x.md", []float32{1, 0, 0}),
		entity("y", "/kb/y.md", []float32{0, 1, 0}),
		entity("xy", "/kb/xy.md", []float32{1, 1, 0}),
	}))

	// When
	hits, err := s.Search(ctx, "knowledge_a", [][]float32{{2, 0, 0}}, 2, []string{FieldPath, FieldText}, nil)

	// Then
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Len(t, hits[0], 2)
	assert.Equal(t, "x", hits[0][0].ID)
	assert.InDelta(t, 0.0, hits[0][0].Distance, 1e-6)
	assert.Equal(t, "/kb/x.md", hits[0][0].Fields.String(FieldPath))
	assert.Equal(t, "text of x", hits[0][0].Fields.String(FieldText))
	assert.NotContains(t, hits[0][0].Fields, FieldID)
	assert.Equal(t, "xy", hits[0][1].ID)
	assert.InDelta(t, 1-0.70710678, hits[0][1].Distance, 1e-5)
}

func TestSearch_Filtered(t *testing.T) {
	// Given: the nearest entity lacks the required tag
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 2))
	near := entity("near", "/kb/near.md", []float32{1, 0})
	far := entity("far", "/kb/far.md", []float32{0, 1})
	far.TagsStr = `["#backtest","#idea"]`
	far.Sharpe = float(2.0)
	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{near, far}))
	expr, err := filter.Build([]string{"#backtest"}, map[string]any{"sharpe": ">= 2"})
	require.NoError(t, err)

	// When
	hits, err := s.Search(ctx, "knowledge_a", [][]float32{{1, 0}}, 5, []string{FieldSharpe}, expr)

	// Then
	require.NoError(t, err)
	require.Len(t, hits[0], 1)
	assert.Equal(t, "far", hits[0][0].ID)
	assert.Equal(t, 2.0, hits[0][0].Fields[FieldSharpe])
}

func TestSearch_TagFilterIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 2))
	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{entity("1", "/kb/a.md", []float32{1, 0})}))
	expr, err := filter.Build([]string{"#IDEA"}, nil)
	require.NoError(t, err)

	hits, err := s.Search(ctx, "knowledge_a", [][]float32{{1, 0}}, 5, nil, expr)

	require.NoError(t, err)
	assert.Empty(t, hits[0])
}

func TestSearch_HNSWPath(t *testing.T) {
	// Given: more entities than the exact-search limit
	ctx := context.Background()
	s := newTestStore(t)
	s.ExactSearchLimit = 10
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 4))
	var entities []Entity
	for i := 0; i < 50; i++ {
		vec := []float32{float32(i + 1), float32(50 - i), float32(i % 7), 1}
		entities = append(entities, entity(fmt.Sprintf("e%02d", i), fmt.Sprintf("/kb/%d.md", i), vec))
	}
	require.NoError(t, s.Insert(ctx, "knowledge_a", entities))

	// When: querying with an indexed vector
	hits, err := s.Search(ctx, "knowledge_a", [][]float32{entities[17].Vector}, 3, []string{FieldPath}, nil)

	// Then
	require.NoError(t, err)
	require.NotEmpty(t, hits[0])
	assert.Equal(t, "e17", hits[0][0].ID)
	assert.InDelta(t, 0.0, hits[0][0].Distance, 1e-5)
	assert.Equal(t, "/kb/17.md", hits[0][0].Fields.String(FieldPath))

	// When: the collection changes, the graph is rebuilt
	del, err := filter.Build(nil, map[string]any{"path": "/kb/17.md"})
	require.NoError(t, err)
	n, err := s.Delete(ctx, "knowledge_a", del)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	hits, err = s.Search(ctx, "knowledge_a", [][]float32{entities[17].Vector}, 3, nil, nil)

	// Then
	require.NoError(t, err)
	for _, h := range hits[0] {
		assert.NotEqual(t, "e17", h.ID)
	}
}

func TestDeleteAndQuery(t *testing.T) {
	// Given
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 2))
	a := entity("a1", "/kb/a.md", []float32{1, 0})
	a.TypeField = "research"
	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{
		a,
		entity("a2", "/kb/a.md", []float32{0, 1}),
		entity("b1", "/kb/b.md", []float32{1, 1}),
	}))

	// When
	_, err := s.Delete(ctx, "knowledge_a", nil)
	require.Error(t, err, "nil filter is rejected")
	del, err := filter.Build(nil, map[string]any{"path": "/kb/a.md"})
	require.NoError(t, err)
	n, err := s.Delete(ctx, "knowledge_a", del)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	recs, err := s.Query(ctx, "knowledge_a", nil, []string{FieldID, FieldPath, FieldCAGR}, 0)
	require.NoError(t, err)
	assert.Equal(t, []Record{{FieldID: "b1", FieldPath: "/kb/b.md", FieldCAGR: nil}}, recs)

	// When: deleting a path that was never indexed
	del, err = filter.Build(nil, map[string]any{"path": "/kb/new.md"})
	require.NoError(t, err)
	n, err = s.Delete(ctx, "knowledge_a", del)

	// Then
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQuery_LimitAndUnknownField(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 2))
	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{
		entity("1", "/kb/1.md", []float32{1, 0}),
		entity("2", "/kb/2.md", []float32{1, 0}),
		entity("3", "/kb/3.md", []float32{1, 0}),
	}))

	recs, err := s.Query(ctx, "knowledge_a", nil, []string{FieldTags}, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, `["#idea"]`, recs[0].String(FieldTags))

	_, err = s.Query(ctx, "knowledge_a", nil, []string{"vector"}, 2)
	assert.Error(t, err)

	_, err = s.Query(ctx, "knowledge_missing", nil, nil, 2)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestInsert_UpsertsByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 2))
	first := entity("1", "/kb/1.md", []float32{1, 0})
	second := first
	second.Text = "replaced"

	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{first}))
	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{second}))

	recs, err := s.Query(ctx, "knowledge_a", nil, []string{FieldText}, 0)
	require.NoError(t, err)
	assert.Equal(t, []Record{{FieldText: "replaced"}}, recs)
}

func TestNewSQLiteStore_Persists(t *testing.T) {
	// Given
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateCollection(ctx, "knowledge_a", 2))
	require.NoError(t, s.Insert(ctx, "knowledge_a", []Entity{entity("1", "/kb/1.md", []float32{1, 0})}))
	require.NoError(t, s.Close())

	// When
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	// Then
	has, err := reopened.HasCollection(ctx, "knowledge_a")
	require.NoError(t, err)
	assert.True(t, has)
	hits, err := reopened.Search(ctx, "knowledge_a", [][]float32{{1, 0}}, 1, []string{FieldPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", hits[0][0].ID)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0.5, -1.25, 3}

	got, err := decodeVector(encodeVector(v))

	require.NoError(t, err)
	assert.Equal(t, v, got)
	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

package index

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/filter"
	"github.com/Aman-CERP/amankb/internal/metadata"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

func seed(t *testing.T, root string) {
	t.Helper()
	writeFile(t, filepath.Join(root, "momentum.md"), momentumNote)
	writeFile(t, filepath.Join(root, "notes", "mean-reversion.md"), meanReversionNote)
	writeFile(t, filepath.Join(root, "signals.py"), pySource)
	writeFile(t, filepath.Join(root, "data.csv"), "a,b\n1,2\n")
	writeFile(t, filepath.Join(root, ".hidden", "secret.md"), meanReversionNote)
}

func queryPath(t *testing.T, f *fixture, path string) []store.Record {
	t.Helper()
	vs, err := f.stores.For(f.root)
	require.NoError(t, err)
	recs, err := vs.Query(context.Background(), tracking.CollectionName(f.root),
		filter.Compare{Field: filter.FieldPath, Op: filter.OpEq, Value: filter.String(path)}, nil, 0)
	require.NoError(t, err)
	return recs
}

func TestIndex_FirstPassThenUpToDate(t *testing.T) {
	// Given
	f := newFixture(t)
	seed(t, f.root)
	ctx := context.Background()

	// When
	res, err := f.orch.Index(ctx, f.root, Options{Recursive: true})

	// Then
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, MsgIncremental, res.Message)
	assert.Equal(t, 3, res.ProcessedFiles)
	assert.Positive(t, res.TotalChunks)
	assert.ElementsMatch(t, []string{"momentum.md", "mean-reversion.md", "signals.py"}, res.Files)
	assert.True(t, f.tracking.Exists(f.root))
	assert.Len(t, f.tracking.Load(f.root).Files, 3)

	// When: nothing changed
	batches := f.embedder.batches.Load()
	opens := f.stores.openCount()
	res, err = f.orch.Index(ctx, f.root, Options{Recursive: true})

	// Then
	require.NoError(t, err)
	assert.Equal(t, MsgUpToDate, res.Message)
	assert.Zero(t, res.ProcessedFiles)
	assert.Zero(t, res.TotalChunks)
	assert.Equal(t, batches, f.embedder.batches.Load(), "no embedding calls")
	assert.Equal(t, opens, f.stores.openCount(), "no store calls")
}

func TestIndex_ModifiedFileReplacesItsChunks(t *testing.T) {
	// Given
	f := newFixture(t)
	seed(t, f.root)
	ctx := context.Background()
	_, err := f.orch.Index(ctx, f.root, Options{Recursive: true})
	require.NoError(t, err)
	path := filepath.Join(f.root, "notes", "mean-reversion.md")
	before := queryPath(t, f, path)
	require.NotEmpty(t, before)

	// When
	writeFile(t, path, "# Pairs trading\n\nCointegrated pairs are traded on spread z-scores with a hard stop. #research\n")
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	res, err := f.orch.Index(ctx, f.root, Options{Recursive: true})

	// Then
	require.NoError(t, err)
	assert.Equal(t, MsgIncremental, res.Message)
	assert.Equal(t, 1, res.ProcessedFiles)
	assert.Equal(t, []string{"mean-reversion.md"}, res.Files)
	after := queryPath(t, f, path)
	require.Len(t, after, res.TotalChunks)
	for _, rec := range after {
		assert.Contains(t, rec.String(store.FieldText), "Cointegrated")
	}
	assert.NotEmpty(t, queryPath(t, f, filepath.Join(f.root, "momentum.md")), "other files untouched")
}

func TestIndex_ForceRebuilds(t *testing.T) {
	f := newFixture(t)
	seed(t, f.root)
	ctx := context.Background()
	first, err := f.orch.Index(ctx, f.root, Options{Recursive: true})
	require.NoError(t, err)

	res, err := f.orch.Index(ctx, f.root, Options{Recursive: true, Force: true})

	require.NoError(t, err)
	assert.Equal(t, MsgFullReindex, res.Message)
	assert.Equal(t, 3, res.ProcessedFiles)
	assert.Equal(t, first.TotalChunks, res.TotalChunks)
	vs, err := f.stores.For(f.root)
	require.NoError(t, err)
	all, err := vs.Query(ctx, tracking.CollectionName(f.root), nil, []string{store.FieldID}, 0)
	require.NoError(t, err)
	assert.Len(t, all, res.TotalChunks, "no duplicates after a forced pass")
}

func TestIndex_LostCollectionRebuildsEverything(t *testing.T) {
	// Given an indexed root whose collection vanished from the store
	f := newFixture(t)
	seed(t, f.root)
	ctx := context.Background()
	_, err := f.orch.Index(ctx, f.root, Options{Recursive: true})
	require.NoError(t, err)
	vs, err := f.stores.For(f.root)
	require.NoError(t, err)
	require.NoError(t, vs.DropCollection(ctx, tracking.CollectionName(f.root)))
	require.Len(t, f.tracking.Load(f.root).Files, 3)

	// When one file changes and an incremental pass runs
	writeFile(t, filepath.Join(f.root, "signals.py"), pySource+"\n\ndef extra():\n    return 1\n")
	res, err := f.orch.Index(ctx, f.root, Options{Recursive: true})

	// Then every tracked file is indexed again, not only the changed one
	require.NoError(t, err)
	assert.Equal(t, MsgFullReindex, res.Message)
	assert.Equal(t, 3, res.ProcessedFiles)
	assert.NotEmpty(t, queryPath(t, f, filepath.Join(f.root, "momentum.md")))
	assert.NotEmpty(t, queryPath(t, f, filepath.Join(f.root, "notes", "mean-reversion.md")))
	assert.Len(t, f.tracking.Load(f.root).Files, 3)
}

func TestIndex_NonRecursiveSkipsSubdirectories(t *testing.T) {
	f := newFixture(t)
	seed(t, f.root)

	res, err := f.orch.Index(context.Background(), f.root, Options{Recursive: false})

	require.NoError(t, err)
	assert.Equal(t, 2, res.ProcessedFiles)
	assert.NotContains(t, res.Files, "mean-reversion.md")
}

func TestIndex_StoredEntityFields(t *testing.T) {
	// Given
	f := newFixture(t)
	seed(t, f.root)
	path := filepath.Join(f.root, "momentum.md")

	// When
	_, err := f.orch.Index(context.Background(), f.root, Options{Recursive: true})
	require.NoError(t, err)

	// Then
	recs := queryPath(t, f, path)
	require.Len(t, recs, 2, "front-matter preamble and one section")
	rec := recs[0]
	assert.Equal(t, "momentum.md", rec.String(store.FieldFilename))
	assert.Equal(t, `["#backtest","#momentum"]`, rec.String(store.FieldTags))
	assert.Equal(t, "strategy", rec.String(store.FieldType))
	assert.Equal(t, "momentum", rec.String(store.FieldStrategy))
	assert.InDelta(t, 1.8, rec[store.FieldSharpe], 1e-9)
	assert.InDelta(t, 12.5, rec[store.FieldCAGR], 1e-9)
	assert.Nil(t, rec[store.FieldDrawdown])
	texts := recs[0].String(store.FieldText) + recs[1].String(store.FieldText)
	assert.Contains(t, texts, "sharpe: 1.8")
	assert.Contains(t, texts, "Twelve-month momentum")

	md, ok := metadata.Decode(rec.String(store.FieldMetadataJSON))
	require.True(t, ok)
	assert.Equal(t, "md", md.FileType)
	assert.Equal(t, []string{"#backtest", "#momentum"}, md.Tags)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.String(store.FieldMetadataJSON)), &raw))
	assert.NotContains(t, raw, "module_name", "absent fields are omitted")
}

func TestIndex_NoContent(t *testing.T) {
	// Given: only a file too short to chunk
	f := newFixture(t)
	writeFile(t, filepath.Join(f.root, "stub.md"), "# Stub\n\nTODO\n")
	ctx := context.Background()

	// When
	res, err := f.orch.Index(ctx, f.root, Options{Recursive: true})

	// Then
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, MsgNoContent, res.Message)
	assert.Equal(t, 1, res.ProcessedFiles)
	assert.Zero(t, res.TotalChunks)
	assert.Zero(t, f.embedder.batches.Load())

	res, err = f.orch.Index(ctx, f.root, Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, MsgUpToDate, res.Message)
}

func TestIndex_EmbedBatches(t *testing.T) {
	f := newFixture(t)
	f.orch.batchSize = 1
	seed(t, f.root)

	res, err := f.orch.Index(context.Background(), f.root, Options{Recursive: true})

	require.NoError(t, err)
	assert.Equal(t, int32(res.TotalChunks), f.embedder.batches.Load())
	assert.Equal(t, int32(res.TotalChunks), f.embedder.texts.Load())
}

func TestIndex_EmbeddingFailureAborts(t *testing.T) {
	// Given
	f := newFixture(t)
	seed(t, f.root)
	f.embedder.fail = kberrors.New(kberrors.ErrCodeNetworkUnavailable, "ollama down", nil)

	// When
	res, err := f.orch.Index(context.Background(), f.root, Options{Recursive: true})

	// Then
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, kberrors.ErrCodeNetworkUnavailable, kberrors.GetCode(err))
	assert.False(t, f.tracking.Exists(f.root), "tracking is only saved after a successful insert")

	// When: the embedder recovers
	f.embedder.fail = nil
	res, err = f.orch.Index(context.Background(), f.root, Options{Recursive: true})

	// Then: the next pass picks every file up again
	require.NoError(t, err)
	assert.Equal(t, 3, res.ProcessedFiles)
}

func TestIndex_PathDenied(t *testing.T) {
	f := newFixture(t)
	f.cfg.Paths.AllowedDirs = []string{t.TempDir()}

	_, err := f.orch.Index(context.Background(), f.root, Options{Recursive: true})

	require.Error(t, err)
	assert.True(t, errors.Is(err, kberrors.ErrPathDenied))
	assert.Contains(t, err.Error(), "Path not allowed")
}

func TestIndex_MissingRoot(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Index(context.Background(), filepath.Join(f.root, "nope"), Options{})

	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeFileNotFound, kberrors.GetCode(err))
}

func TestIndex_DeletedFilesStayTracked(t *testing.T) {
	f := newFixture(t)
	seed(t, f.root)
	ctx := context.Background()
	_, err := f.orch.Index(ctx, f.root, Options{Recursive: true})
	require.NoError(t, err)
	gone := filepath.Join(f.root, "signals.py")
	require.NoError(t, os.Remove(gone))

	res, err := f.orch.Index(ctx, f.root, Options{Recursive: true})

	require.NoError(t, err)
	assert.Equal(t, MsgUpToDate, res.Message)
	assert.Equal(t, []string{gone}, f.tracking.MissingFiles(f.root))
}

func TestShouldRefresh(t *testing.T) {
	// Given
	f := newFixture(t)
	seed(t, f.root)
	f.cfg.Refresh.Interval = time.Hour

	// Then: never indexed
	assert.True(t, f.orch.ShouldRefresh(f.root))

	// When
	_, err := f.orch.Index(context.Background(), f.root, Options{Recursive: true})
	require.NoError(t, err)

	// Then
	assert.False(t, f.orch.ShouldRefresh(f.root))
	f.orch.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.True(t, f.orch.ShouldRefresh(f.root), "interval elapsed, inclusive")
	f.cfg.Refresh.Enabled = false
	assert.False(t, f.orch.ShouldRefresh(f.root))
}

func TestRefreshIfNeeded(t *testing.T) {
	f := newFixture(t)
	seed(t, f.root)
	ctx := context.Background()

	res, err := f.orch.RefreshIfNeeded(ctx, f.root)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ProcessedFiles)

	res, err = f.orch.RefreshIfNeeded(ctx, f.root)
	require.NoError(t, err)
	assert.Nil(t, res, "not due yet")
}

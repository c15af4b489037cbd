package search

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/registry"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

// axisEmbedder embeds every query as the first unit axis.
type axisEmbedder struct {
	embed.Embedder
	queries atomic.Int32
}

func (a *axisEmbedder) Embed(context.Context, string) ([]float32, error) {
	a.queries.Add(1)
	return []float32{1, 0, 0}, nil
}

func (a *axisEmbedder) Dimensions() int { return 3 }

type stubRefresher struct {
	calls atomic.Int32
	err   error
}

func (s *stubRefresher) RefreshIfNeeded(context.Context, string) (*index.Result, error) {
	s.calls.Add(1)
	return nil, s.err
}

type stubRoots []registry.Root

func (s stubRoots) Roots() ([]registry.Root, error) { return s, nil }

type fixture struct {
	cfg      *config.Config
	tracking *tracking.Store
	pool     *store.Pool
	embedder *axisEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.CacheDir = t.TempDir()
	cfg.Paths.AllowedDirs = nil
	cfg.Index.Workers = 2

	tr := tracking.NewStore(cfg.Paths.CacheDir, 0)
	f := &fixture{
		cfg:      cfg,
		tracking: tr,
		pool:     store.NewPool(tr.Dir),
		embedder: &axisEmbedder{},
	}
	t.Cleanup(func() { _ = f.pool.Close() })
	return f
}

func (f *fixture) engine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(f.cfg, f.tracking, f.pool, f.embedder, opts...)
	require.NoError(t, err)
	return e
}

// seed indexes entities under a fresh root and returns the root.
func (f *fixture) seed(t *testing.T, entities ...store.Entity) string {
	t.Helper()
	root := config.ResolvePath(t.TempDir())
	ctx := context.Background()

	vs, err := f.pool.For(root)
	require.NoError(t, err)
	name := tracking.CollectionName(root)
	require.NoError(t, vs.CreateCollection(ctx, name, 3))
	if len(entities) > 0 {
		require.NoError(t, vs.Insert(ctx, name, entities))
	}

	rec := tracking.NewRecord()
	rec.Root = root
	require.NoError(t, f.tracking.Save(root, rec))
	return root
}

func entity(id string, vec []float32, tags string) store.Entity {
	return store.Entity{
		ID:           id,
		Text:         "text of " + id,
		Filename:     id + ".md",
		Path:         "/notes/" + id + ".md",
		Vector:       vec,
		TagsStr:      tags,
		MetadataJSON: `{"file_type":"md","tags":[],"custom":{}}`,
	}
}

func ptr(v float64) *float64 { return &v }

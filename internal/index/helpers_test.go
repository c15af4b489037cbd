package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

// countingEmbedder counts document batches and can be made to fail.
type countingEmbedder struct {
	embed.Embedder
	batches atomic.Int32
	texts   atomic.Int32
	fail    error
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches.Add(1)
	c.texts.Add(int32(len(texts)))
	if c.fail != nil {
		return nil, c.fail
	}
	return c.Embedder.EmbedBatch(ctx, texts)
}

// memProvider hands out in-memory stores and counts opens.
type memProvider struct {
	mu     sync.Mutex
	stores map[string]*store.SQLiteStore
	opens  int
}

func newMemProvider() *memProvider {
	return &memProvider{stores: make(map[string]*store.SQLiteStore)}
}

func (p *memProvider) For(root string) (store.VectorStore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	if s, ok := p.stores[root]; ok {
		return s, nil
	}
	s, err := store.NewSQLiteStore("")
	if err != nil {
		return nil, err
	}
	p.stores[root] = s
	return s, nil
}

func (p *memProvider) Release(root string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stores[root]
	delete(p.stores, root)
	if !ok {
		return nil
	}
	return s.Close()
}

func (p *memProvider) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func (p *memProvider) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stores {
		_ = s.Close()
	}
}

type fixture struct {
	orch     *Orchestrator
	cfg      *config.Config
	embedder *countingEmbedder
	stores   *memProvider
	tracking *tracking.Store
	root     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.CacheDir = t.TempDir()
	cfg.Paths.AllowedDirs = nil
	cfg.Index.Workers = 2

	f := &fixture{
		cfg:      cfg,
		embedder: &countingEmbedder{Embedder: embed.NewStaticEmbedder(32)},
		stores:   newMemProvider(),
		tracking: tracking.NewStore(cfg.Paths.CacheDir, 0),
		root:     t.TempDir(),
	}
	t.Cleanup(f.stores.closeAll)

	orch, err := New(Dependencies{
		Config:   cfg,
		Tracking: f.tracking,
		Stores:   f.stores,
		Embedder: f.embedder,
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const momentumNote = `---
tags: [momentum, backtest]
type: strategy
strategy: momentum
sharpe: 1.8
cagr: "12.5"
---
# Momentum

Twelve-month momentum with a one-month skip outperforms in trending regimes.
`

const meanReversionNote = `# Mean reversion

Short-horizon mean reversion on liquid ETFs, entered at two standard deviations. #research
`

const pySource = `"""Signal helpers for the momentum book."""
import numpy as np


def rolling_return(prices, window=252):
    return prices.pct_change(window)
`

package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/index"
)

type fakeIndexer struct {
	mu    sync.Mutex
	calls []index.Options
	err   error
}

func (f *fakeIndexer) Index(_ context.Context, root string, opts index.Options) (*index.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &index.Result{Path: root, Status: index.StatusSuccess, Message: index.MsgIncremental}, nil
}

func (f *fakeIndexer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestNew_NilIndexer(t *testing.T) {
	_, err := New(nil, DefaultOptions())
	assert.Error(t, err)
}

func TestRun_MissingRoot(t *testing.T) {
	w, err := New(&fakeIndexer{}, DefaultOptions())
	require.NoError(t, err)

	err = w.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
}

func TestRun_IndexesOnChange(t *testing.T) {
	// Given a watcher over an empty root
	root := t.TempDir()
	idx := &fakeIndexer{}
	w, err := New(idx, Options{DebounceWindow: 20 * time.Millisecond, Recursive: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, root) }()

	// Then the initial pass runs
	require.Eventually(t, func() bool { return idx.count() >= 1 }, 2*time.Second, 10*time.Millisecond)

	// When a supported file is written
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("# hi"), 0o644))

	// Then another incremental pass follows
	require.Eventually(t, func() bool { return idx.count() >= 2 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	idx.mu.Lock()
	defer idx.mu.Unlock()
	assert.True(t, idx.calls[0].Recursive)
	assert.False(t, idx.calls[1].Force)
}

func TestRun_PollingReportsFailures(t *testing.T) {
	// Given an indexer that always fails and a polling watcher
	idx := &fakeIndexer{err: errors.New("boom")}
	w, err := New(idx, Options{PollInterval: 10 * time.Millisecond, ForcePolling: true})
	require.NoError(t, err)

	var mu sync.Mutex
	var failures int
	w.OnResult = func(_ *index.Result, err error) {
		if err != nil {
			mu.Lock()
			failures++
			mu.Unlock()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, t.TempDir()) }()

	// Then passes keep running after failures
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return failures >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

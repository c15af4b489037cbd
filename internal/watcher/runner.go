package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/index"
)

// Indexer runs an index pass over a root.
type Indexer interface {
	Index(ctx context.Context, root string, opts index.Options) (*index.Result, error)
}

// Watcher re-indexes a root incrementally whenever its files change.
type Watcher struct {
	indexer Indexer
	opts    Options

	// OnResult, if set, receives the outcome of every pass.
	OnResult func(*index.Result, error)
}

// New creates a watcher driving indexer.
func New(indexer Indexer, opts Options) (*Watcher, error) {
	if indexer == nil {
		return nil, errors.New("watcher: nil indexer")
	}
	return &Watcher{indexer: indexer, opts: opts.WithDefaults()}, nil
}

// Run brings root up to date, then watches it until ctx is cancelled.
// Errors from individual passes are reported and watching continues.
func (w *Watcher) Run(ctx context.Context, root string) error {
	root = config.ResolvePath(root)
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", root)
	}

	w.pass(ctx, root, "initial")

	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			defer func() { _ = fsw.Close() }()
			return w.runFsnotify(ctx, root, fsw)
		}
		slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
	}
	return w.runPolling(ctx, root)
}

func (w *Watcher) runFsnotify(ctx context.Context, root string, fsw *fsnotify.Watcher) error {
	if err := w.addDirs(fsw, root, root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	deb := NewDebouncer(w.opts.DebounceWindow)
	defer deb.Stop()

	slog.Info("watch_started", slog.String("path", root), slog.String("mode", "fsnotify"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if fe, ok := w.convert(fsw, root, ev); ok {
				deb.Add(fe)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("path", root), slog.String("error", err.Error()))
		case batch, ok := <-deb.Output():
			if !ok {
				return nil
			}
			slog.Debug("watch_batch", slog.String("path", root), slog.Int("events", len(batch)))
			w.pass(ctx, root, "change")
		}
	}
}

// runPolling leans on the index's own change detection: an incremental
// pass over an unchanged root touches nothing.
func (w *Watcher) runPolling(ctx context.Context, root string) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	slog.Info("watch_started", slog.String("path", root), slog.String("mode", "polling"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.pass(ctx, root, "poll")
		}
	}
}

func (w *Watcher) pass(ctx context.Context, root, trigger string) {
	res, err := w.indexer.Index(ctx, root, index.Options{Recursive: w.opts.Recursive})
	switch {
	case err != nil:
		if ctx.Err() == nil {
			slog.Warn("watch_index_failed", slog.String("path", root), slog.String("error", err.Error()))
		}
	case res.Message != index.MsgUpToDate:
		slog.Info("watch_indexed",
			slog.String("path", root),
			slog.String("trigger", trigger),
			slog.Int("files", res.ProcessedFiles),
			slog.Int("chunks", res.TotalChunks))
	}
	if w.OnResult != nil {
		w.OnResult(res, err)
	}
}

// convert maps an fsnotify event to a FileEvent under root, adding new
// directories to the watch as they appear.
func (w *Watcher) convert(fsw *fsnotify.Watcher, root string, ev fsnotify.Event) (FileEvent, bool) {
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return FileEvent{}, false
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}
	if !relevant(rel, isDir) {
		return FileEvent{}, false
	}

	var op Operation
	switch {
	case ev.Op.Has(fsnotify.Create):
		op = OpCreate
		if isDir && w.opts.Recursive {
			if err := w.addDirs(fsw, root, ev.Name); err != nil {
				slog.Warn("watch_add_failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	case ev.Op.Has(fsnotify.Write):
		op = OpModify
	case ev.Op.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Op.Has(fsnotify.Rename):
		op = OpRename
	default:
		return FileEvent{}, false
	}

	return FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()}, true
}

// addDirs watches dir and, in recursive mode, every visible directory
// below it.
func (w *Watcher) addDirs(fsw *fsnotify.Watcher, root, dir string) error {
	if !w.opts.Recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("watch_skip_dir", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			rel, _ := filepath.Rel(root, path)
			if !relevant(rel, true) {
				return filepath.SkipDir
			}
		}
		return fsw.Add(path)
	})
}

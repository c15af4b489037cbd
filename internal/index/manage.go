package index

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amankb/internal/config"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

// IndexMany indexes roots concurrently with at most Index.Workers passes
// in flight. Every root gets a Result, in input order; a failed root is
// reported as a StatusError result and does not stop the others.
func (o *Orchestrator) IndexMany(ctx context.Context, roots []string, opts Options) []*Result {
	results := make([]*Result, len(roots))

	workers := o.cfg.Index.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, root := range roots {
		g.Go(func() error {
			res, err := o.Index(gctx, root, opts)
			if err != nil {
				slog.Warn("index_root_failed",
					slog.String("path", root),
					slog.String("error", err.Error()))
				res = ErrorResult(root, err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RefreshAll runs an incremental pass over every indexed root.
func (o *Orchestrator) RefreshAll(ctx context.Context) ([]*Result, error) {
	summaries, err := o.tracking.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	roots := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if s.Root != "" {
			roots = append(roots, s.Root)
		}
	}
	return o.IndexMany(ctx, roots, Options{Recursive: true}), nil
}

// ListIndexes describes every root with a tracking record in the cache
// directory.
func (o *Orchestrator) ListIndexes() ([]tracking.Summary, error) {
	return o.tracking.List()
}

// DropResult is the outcome of Drop.
type DropResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Drop deletes root's collection and everything in its cache directory
// except the lock file, which other processes may be waiting on.
func (o *Orchestrator) Drop(ctx context.Context, root string) (*DropResult, error) {
	abs := config.ResolvePath(root)

	lock, err := o.locker.Acquire(ctx, abs)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	vs, err := o.stores.For(abs)
	if err != nil {
		return nil, kberrors.Wrap(kberrors.ErrCodeStoreFailed, err)
	}
	if err := vs.DropCollection(ctx, tracking.CollectionName(abs)); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeStoreFailed, "failed to drop collection", err)
	}
	if err := o.stores.Release(abs); err != nil {
		slog.Warn("store_release_failed", slog.String("path", abs), slog.String("error", err.Error()))
	}
	if err := o.tracking.Clear(abs, LockFileName); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeIndexFailed, "failed to remove cache directory", err)
	}

	slog.Info("index_dropped", slog.String("path", abs))
	return &DropResult{Status: StatusSuccess, Message: fmt.Sprintf("Dropped index for %s", abs)}, nil
}

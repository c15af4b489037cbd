package search

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/filter"
	"github.com/Aman-CERP/amankb/internal/registry"
)

func (e *Engine) registered() ([]registry.Root, error) {
	if e.roots == nil {
		return nil, nil
	}
	return e.roots.Roots()
}

// errNoKnowledgeBases reports an empty registry to aggregate callers.
func errNoKnowledgeBases() error {
	return kberrors.New(kberrors.ErrCodeRegistry, "No knowledge bases registered", nil).
		WithSuggestion("register directories in the knowledge registry file")
}

// SearchAll searches every registered root. See SearchRoots.
func (e *Engine) SearchAll(ctx context.Context, query string, opts Options) ([]Result, error) {
	roots, err := e.registered()
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, errNoKnowledgeBases()
	}
	return e.SearchRoots(ctx, roots, query, opts)
}

// SearchRoots searches roots concurrently without refreshing them.
// Results carry their knowledge base name; a root that fails is logged
// and skipped. The merged list is sorted by score and cut to the limit.
func (e *Engine) SearchRoots(ctx context.Context, roots []registry.Root, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, kberrors.New(kberrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.Search.Limit
	}
	if _, err := filter.Build(opts.Tags, opts.Metadata); err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		all []Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for _, rt := range roots {
		g.Go(func() error {
			root, err := e.checkRoot(rt.Path)
			if err == nil {
				var results []Result
				results, err = e.search(gctx, root, query, opts)
				if err == nil {
					for i := range results {
						results[i].KnowledgeBase = rt.Name
					}
					mu.Lock()
					all = append(all, results...)
					mu.Unlock()
					return nil
				}
			}
			slog.Warn("search_root_failed",
				slog.String("knowledge_base", rt.Name),
				slog.String("path", rt.Path),
				slog.String("error", err.Error()))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Path < all[j].Path
	})
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	if all == nil {
		all = []Result{}
	}
	return all, nil
}

// AllTagsAll sums tag counts across every registered root.
func (e *Engine) AllTagsAll(ctx context.Context) ([]TagCount, error) {
	roots, err := e.registered()
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, errNoKnowledgeBases()
	}
	return e.AllTagsRoots(ctx, roots), nil
}

// AllTagsRoots sums tag counts across roots, skipping those that cannot
// be read.
func (e *Engine) AllTagsRoots(ctx context.Context, roots []registry.Root) []TagCount {
	total := make(map[string]int)
	for _, rt := range roots {
		root, err := e.checkRoot(rt.Path)
		if err == nil {
			var counts map[string]int
			if counts, err = e.tagCounts(ctx, root); err == nil {
				for tag, n := range counts {
					total[tag] += n
				}
				continue
			}
		}
		slog.Debug("tags_root_skipped", slog.String("path", rt.Path), slog.String("error", err.Error()))
	}
	return sortTags(total)
}

// MetadataFieldsAll merges field descriptions across registered roots.
func (e *Engine) MetadataFieldsAll(ctx context.Context) (map[string]FieldInfo, error) {
	roots, err := e.registered()
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, errNoKnowledgeBases()
	}
	return e.MetadataFieldsRoots(ctx, roots), nil
}

// MetadataFieldsRoots merges field descriptions across roots in order;
// the first root to describe a field wins.
func (e *Engine) MetadataFieldsRoots(ctx context.Context, roots []registry.Root) map[string]FieldInfo {
	out := make(map[string]FieldInfo)
	for _, rt := range roots {
		fields, err := e.MetadataFields(ctx, rt.Path)
		if err != nil {
			slog.Debug("fields_root_skipped", slog.String("path", rt.Path), slog.String("error", err.Error()))
			continue
		}
		for name, info := range fields {
			if _, ok := out[name]; !ok {
				out[name] = info
			}
		}
	}
	return out
}

func (e *Engine) workers() int {
	if e.cfg.Index.Workers > 0 {
		return e.cfg.Index.Workers
	}
	return runtime.NumCPU()
}

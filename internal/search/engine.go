package search

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/filetype"
	"github.com/Aman-CERP/amankb/internal/filter"
	"github.com/Aman-CERP/amankb/internal/metadata"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// resultFields are the entity fields a search returns.
var resultFields = []string{store.FieldText, store.FieldFilename, store.FieldPath, store.FieldMetadataJSON}

// Engine runs semantic searches over indexed roots.
type Engine struct {
	cfg       *config.Config
	tracking  *tracking.Store
	stores    store.Provider
	embedder  embed.Embedder
	refresher Refresher
	roots     RootSource
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithRefresher enables opportunistic incremental indexing before a
// single-root search.
func WithRefresher(r Refresher) EngineOption {
	return func(e *Engine) {
		e.refresher = r
	}
}

// WithRoots sets the registry searched by the aggregate operations.
func WithRoots(src RootSource) EngineOption {
	return func(e *Engine) {
		e.roots = src
	}
}

// NewEngine creates a search engine with the given dependencies.
// Returns an error if any required dependency is nil.
func NewEngine(cfg *config.Config, tr *tracking.Store, stores store.Provider, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if cfg == nil || tr == nil || stores == nil || embedder == nil {
		return nil, ErrNilDependency
	}
	e := &Engine{cfg: cfg, tracking: tr, stores: stores, embedder: embedder}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DefaultOptions returns Options with the configured limit and threshold.
func (e *Engine) DefaultOptions() Options {
	return Options{Limit: e.cfg.Search.Limit, Threshold: e.cfg.Search.Threshold}
}

// Search finds the chunks of root most similar to query. A root that is
// due for a refresh is brought up to date first; a refresh failure is
// logged and the search proceeds on the existing index.
func (e *Engine) Search(ctx context.Context, root, query string, opts Options) ([]Result, error) {
	root, err := e.checkRoot(root)
	if err != nil {
		return nil, err
	}
	if e.refresher != nil && e.tracking.Exists(root) {
		if _, err := e.refresher.RefreshIfNeeded(ctx, root); err != nil {
			slog.Warn("auto_refresh_failed", slog.String("path", root), slog.String("error", err.Error()))
		}
	}
	return e.search(ctx, root, query, opts)
}

func (e *Engine) search(ctx context.Context, root, query string, opts Options) ([]Result, error) {
	start := time.Now()
	if strings.TrimSpace(query) == "" {
		return nil, kberrors.New(kberrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = e.cfg.Search.Limit
	}

	expr, err := filter.Build(opts.Tags, opts.Metadata)
	if err != nil {
		return nil, err
	}

	vs, name, err := e.collection(ctx, root)
	if err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if kberrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	hits, err := vs.Search(ctx, name, [][]float32{vec}, opts.Limit, resultFields, expr)
	if err != nil {
		var mismatch store.ErrDimensionMismatch
		if errors.As(err, &mismatch) {
			return nil, kberrors.New(kberrors.ErrCodeDimensionMismatch, mismatch.Error(), err).
				WithSuggestion("the embedding model changed; reindex with --force")
		}
		return nil, kberrors.New(kberrors.ErrCodeSearchFailed, "search failed", err)
	}

	if len(hits) == 0 {
		return []Result{}, nil
	}
	results := make([]Result, 0, len(hits[0]))
	for _, h := range hits[0] {
		score := Score(h.Distance)
		if score < opts.Threshold {
			continue
		}
		results = append(results, Result{
			Text:     h.Fields.String(store.FieldText),
			Filename: h.Fields.String(store.FieldFilename),
			Path:     h.Fields.String(store.FieldPath),
			Score:    score,
			Metadata: decodeMetadata(h.Fields.String(store.FieldMetadataJSON)),
		})
	}

	slog.Debug("search_complete",
		slog.String("path", root),
		slog.Int("hits", len(hits[0])),
		slog.Int("results", len(results)),
		slog.Bool("filtered", expr != nil),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// Score converts a cosine distance into a similarity in [0, 1] rounded
// to four decimal places.
func Score(distance float32) float64 {
	s := 1 - float64(distance)
	s = math.Max(0, math.Min(1, s))
	return math.Round(s*1e4) / 1e4
}

func decodeMetadata(s string) metadata.DocumentMetadata {
	md, ok := metadata.Decode(s)
	if !ok {
		return metadata.Minimal(filetype.Unknown)
	}
	return md
}

// checkRoot resolves root and applies the allowed-directories policy.
func (e *Engine) checkRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", kberrors.New(kberrors.ErrCodeInvalidPath, "path is required", nil)
	}
	abs := config.ResolvePath(root)
	if !e.cfg.IsPathAllowed(abs) {
		return "", kberrors.PathDenied(abs)
	}
	return abs, nil
}

// collection returns root's store and collection name, or NotIndexed.
// Roots without a tracking record are reported before any store is
// opened, so searching an unknown directory leaves no files behind.
func (e *Engine) collection(ctx context.Context, root string) (store.VectorStore, string, error) {
	if !e.tracking.Exists(root) {
		return nil, "", kberrors.NotIndexed(root)
	}
	vs, err := e.stores.For(root)
	if err != nil {
		return nil, "", kberrors.Wrap(kberrors.ErrCodeStoreFailed, err)
	}
	name := tracking.CollectionName(root)
	ok, err := vs.HasCollection(ctx, name)
	if err != nil {
		return nil, "", kberrors.Wrap(kberrors.ErrCodeStoreFailed, err)
	}
	if !ok {
		return nil, "", kberrors.NotIndexed(root)
	}
	return vs, name, nil
}

// Package service wires the indexing and search components into the
// operations exposed by the command line and the tool server. Every
// operation takes a target: a knowledge base name, a directory, or ""
// for every registered knowledge base where that makes sense.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/registry"
	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

// EmbedCacheFile is the document embedding cache inside the cache
// directory.
const EmbedCacheFile = "embeddings.db"

// Service owns the long-lived components of one process.
type Service struct {
	cfg      *config.Config
	registry *registry.Registry
	tracking *tracking.Store
	stores   store.Provider
	embedder embed.Embedder
	indexer  *index.Orchestrator
	engine   *search.Engine

	closers []func() error
}

// Dependencies overrides components built by New. Zero fields are built
// from the configuration.
type Dependencies struct {
	Stores   store.Provider
	Embedder embed.Embedder
}

// New builds a service from cfg. The embedder is created lazily on the
// first call that needs vectors.
func New(cfg *config.Config, deps Dependencies) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &Service{
		cfg:      cfg,
		registry: registry.New(cfg.Paths.Registry),
		tracking: tracking.NewStore(cfg.Paths.CacheDir, int64(cfg.Index.MaxFileSizeMB)<<20),
	}

	s.stores = deps.Stores
	if s.stores == nil {
		pool := store.NewPool(s.tracking.Dir)
		s.stores = pool
		s.closers = append(s.closers, pool.Close)
	}

	s.embedder = deps.Embedder
	if s.embedder == nil {
		opts, err := EmbedOptions(cfg)
		if err != nil {
			return nil, err
		}
		lazy := embed.NewLazy(opts)
		s.embedder = lazy
		s.closers = append(s.closers, lazy.Close)
	}

	orch, err := index.New(index.Dependencies{
		Config:   cfg,
		Tracking: s.tracking,
		Stores:   s.stores,
		Embedder: s.embedder,
	})
	if err != nil {
		return nil, err
	}
	s.indexer = orch

	engine, err := search.NewEngine(cfg, s.tracking, s.stores, s.embedder,
		search.WithRefresher(orch),
		search.WithRoots(s.registry))
	if err != nil {
		return nil, err
	}
	s.engine = engine

	return s, nil
}

// EmbedOptions maps the embeddings configuration onto embedder options.
func EmbedOptions(cfg *config.Config) (embed.Options, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return embed.Options{}, kberrors.ConfigError("invalid embedding provider", err)
	}
	opts := embed.Options{
		Provider:       provider,
		Model:          cfg.Embeddings.Model,
		Dimensions:     cfg.Embeddings.Dimensions,
		OllamaHost:     cfg.Embeddings.OllamaHost,
		Timeout:        cfg.Embeddings.Timeout,
		QueryCacheSize: cfg.Embeddings.QueryCacheSize,
	}
	if cfg.Embeddings.DiskCache {
		opts.DiskCachePath = filepath.Join(cfg.Paths.CacheDir, EmbedCacheFile)
	}
	return opts, nil
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Indexer returns the index orchestrator.
func (s *Service) Indexer() *index.Orchestrator { return s.indexer }

// Engine returns the search engine.
func (s *Service) Engine() *search.Engine { return s.engine }

// Registry returns the knowledge base registry.
func (s *Service) Registry() *registry.Registry { return s.registry }

// Close releases the embedder and every open store.
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// roots resolves target into named roots.
func (s *Service) roots(target string) ([]registry.Root, error) {
	paths, err := s.registry.Resolve(target)
	if err != nil {
		return nil, err
	}
	out := make([]registry.Root, len(paths))
	for i, p := range paths {
		out[i] = registry.Root{Name: s.registry.NameFor(p), Path: p}
	}
	return out, nil
}

func paths(roots []registry.Root) []string {
	out := make([]string, len(roots))
	for i, rt := range roots {
		out[i] = rt.Path
	}
	return out
}

// Index indexes every root of target.
func (s *Service) Index(ctx context.Context, target string, opts index.Options) ([]*index.Result, error) {
	roots, err := s.roots(target)
	if err != nil {
		return nil, err
	}
	return s.indexer.IndexMany(ctx, paths(roots), opts), nil
}

// Refresh runs incremental passes over target, or over every indexed
// root when target is "".
func (s *Service) Refresh(ctx context.Context, target string, recursive bool) ([]*index.Result, error) {
	if target == "" {
		return s.indexer.RefreshAll(ctx)
	}
	return s.Index(ctx, target, index.Options{Recursive: recursive})
}

// Search queries target, or every registered knowledge base when target
// is "". A single directory is refreshed first when due.
func (s *Service) Search(ctx context.Context, target, query string, opts search.Options) ([]search.Result, error) {
	if target == "" {
		return s.engine.SearchAll(ctx, query, opts)
	}
	roots, err := s.roots(target)
	if err != nil {
		return nil, err
	}
	if len(roots) == 1 {
		return s.engine.Search(ctx, roots[0].Path, query, opts)
	}
	return s.engine.SearchRoots(ctx, roots, query, opts)
}

// Tags counts tags in target, or across every registered knowledge base.
func (s *Service) Tags(ctx context.Context, target string) ([]search.TagCount, error) {
	if target == "" {
		return s.engine.AllTagsAll(ctx)
	}
	roots, err := s.roots(target)
	if err != nil {
		return nil, err
	}
	if len(roots) == 1 {
		return s.engine.AllTags(ctx, roots[0].Path)
	}
	return s.engine.AllTagsRoots(ctx, roots), nil
}

// Fields describes the filterable fields of target, or of every
// registered knowledge base.
func (s *Service) Fields(ctx context.Context, target string) (map[string]search.FieldInfo, error) {
	if target == "" {
		return s.engine.MetadataFieldsAll(ctx)
	}
	roots, err := s.roots(target)
	if err != nil {
		return nil, err
	}
	if len(roots) == 1 {
		return s.engine.MetadataFields(ctx, roots[0].Path)
	}
	return s.engine.MetadataFieldsRoots(ctx, roots), nil
}

// Drop deletes the index of every root of target. A root that cannot be
// dropped yields an error result.
func (s *Service) Drop(ctx context.Context, target string) ([]*index.DropResult, error) {
	roots, err := s.roots(target)
	if err != nil {
		return nil, err
	}
	out := make([]*index.DropResult, 0, len(roots))
	for _, rt := range roots {
		res, err := s.indexer.Drop(ctx, rt.Path)
		if err != nil {
			slog.Warn("drop_failed", slog.String("path", rt.Path), slog.String("error", err.Error()))
			res = &index.DropResult{Status: index.StatusError, Message: index.ErrorResult(rt.Path, err).Message}
		}
		out = append(out, res)
	}
	return out, nil
}

// Indexes lists every indexed root.
func (s *Service) Indexes() ([]tracking.Summary, error) {
	return s.indexer.ListIndexes()
}

// Knowledges lists registered knowledge bases and the state of their
// directories.
func (s *Service) Knowledges() ([]registry.Status, error) {
	return s.registry.Statuses(s.tracking.Exists)
}

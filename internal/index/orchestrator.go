// Package index keeps a knowledge root's vector collection in sync with
// the files on disk: full or incremental passes, per-root locking,
// multi-root fan-out and index maintenance (list, drop).
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/amankb/internal/chunk"
	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/embed"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
	"github.com/Aman-CERP/amankb/internal/filetype"
	"github.com/Aman-CERP/amankb/internal/filter"
	"github.com/Aman-CERP/amankb/internal/metadata"
	"github.com/Aman-CERP/amankb/internal/scanner"
	"github.com/Aman-CERP/amankb/internal/store"
	"github.com/Aman-CERP/amankb/internal/tracking"
	"github.com/Aman-CERP/amankb/internal/ui"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result messages.
const (
	MsgFullReindex = "Full reindex"
	MsgIncremental = "Incremental update"
	MsgUpToDate    = "Already up to date"
	MsgNoContent   = "No content to index (all chunks empty)"
)

// maxResultFiles bounds Result.Files.
const maxResultFiles = 10

// Options controls one indexing pass.
type Options struct {
	// Recursive descends into subdirectories.
	Recursive bool

	// Force drops the collection and reindexes every file.
	Force bool

	// Renderer receives progress events (optional).
	Renderer ui.Renderer
}

// Result is the outcome of one indexing pass.
type Result struct {
	Path           string   `json:"path"`
	Status         string   `json:"status"`
	Message        string   `json:"message"`
	ProcessedFiles int      `json:"processed_files"`
	TotalChunks    int      `json:"total_chunks"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
	Files          []string `json:"files,omitempty"`
}

// ErrorResult converts a failed pass into a Result.
func ErrorResult(root string, err error) *Result {
	msg := err.Error()
	var ke *kberrors.KBError
	if errors.As(err, &ke) {
		msg = ke.Message
	}
	return &Result{Path: root, Status: StatusError, Message: msg}
}

// Dependencies contains the injected dependencies for Orchestrator.
type Dependencies struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// Tracking reads and writes per-root tracking records (required).
	Tracking *tracking.Store

	// Stores hands out each root's vector store (required).
	Stores store.Provider

	// Embedder generates document embeddings (required).
	Embedder embed.Embedder

	// Extractor reads text and metadata. Defaults from Config.
	Extractor *metadata.Extractor

	// Pipeline chunks extracted text. Defaults from Config.
	Pipeline *chunk.Pipeline

	// Locker serializes passes per root. Defaults to one keyed by
	// Tracking's cache directories.
	Locker *Locker
}

// Orchestrator runs indexing passes.
type Orchestrator struct {
	cfg       *config.Config
	tracking  *tracking.Store
	stores    store.Provider
	embedder  embed.Embedder
	extractor *metadata.Extractor
	pipeline  *chunk.Pipeline
	locker    *Locker
	batchSize int
	now       func() time.Time
}

// New creates an Orchestrator with injected dependencies.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Tracking == nil {
		return nil, fmt.Errorf("tracking store is required")
	}
	if deps.Stores == nil {
		return nil, fmt.Errorf("vector store provider is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	extractor := deps.Extractor
	if extractor == nil {
		extractor = metadata.NewExtractor(metadata.Options{
			SkipNotebookOutputs: deps.Config.Index.SkipNotebookOutputs,
		})
	}
	pipeline := deps.Pipeline
	if pipeline == nil {
		pipeline = chunk.NewPipeline(chunk.Options{
			ChunkTokens:   deps.Config.Index.ChunkSize,
			OverlapTokens: deps.Config.Index.ChunkOverlap,
			MinChars:      deps.Config.Index.MinChunkChars,
		})
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewLocker(deps.Tracking.Dir)
	}
	batch := deps.Config.Index.EmbedBatchSize
	if batch <= 0 {
		batch = 1000
	}

	return &Orchestrator{
		cfg:       deps.Config,
		tracking:  deps.Tracking,
		stores:    deps.Stores,
		embedder:  deps.Embedder,
		extractor: extractor,
		pipeline:  pipeline,
		locker:    locker,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

// Locker returns the orchestrator's per-root locker.
func (o *Orchestrator) Locker() *Locker { return o.locker }

// progress wraps an optional renderer.
type progress struct{ r ui.Renderer }

func (p progress) update(ev ui.ProgressEvent) {
	if p.r != nil {
		p.r.UpdateProgress(ev)
	}
}

func (p progress) warn(file string, err error) {
	if p.r != nil {
		p.r.AddError(ui.ErrorEvent{File: file, Err: err, IsWarn: true})
	}
}

// stageTiming tracks duration for each indexing stage.
type stageTiming struct {
	scan  time.Duration
	chunk time.Duration
	embed time.Duration
	index time.Duration
}

// Index brings root's collection up to date. Incremental passes touch
// only new or changed files; Force rebuilds the collection. A failed
// pass is not rolled back: files whose tracking was not saved are picked
// up again by the next pass.
func (o *Orchestrator) Index(ctx context.Context, root string, opts Options) (*Result, error) {
	start := o.now()
	root, err := o.checkRoot(root)
	if err != nil {
		return nil, err
	}

	lock, err := o.locker.Acquire(ctx, root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	slog.Info("index_started",
		slog.String("path", root),
		slog.Bool("force", opts.Force),
		slog.Bool("recursive", opts.Recursive))

	p := progress{opts.Renderer}
	var timing stageTiming
	name := tracking.CollectionName(root)

	scanStart := o.now()
	p.update(ui.ProgressEvent{Stage: ui.StageScanning, Message: fmt.Sprintf("Scanning %s...", root)})

	var (
		candidates []scanner.FileInfo
		mode       string
		vs         store.VectorStore
		rec        *tracking.Record
	)
	if opts.Force {
		mode = MsgFullReindex
		vs, err = o.stores.For(root)
		if err != nil {
			return nil, kberrors.Wrap(kberrors.ErrCodeStoreFailed, err)
		}
		if err := vs.DropCollection(ctx, name); err != nil {
			return nil, kberrors.New(kberrors.ErrCodeStoreFailed, "failed to drop collection", err)
		}
		if _, err := o.ensureCollection(ctx, vs, name); err != nil {
			return nil, err
		}
		candidates, err = scanner.Scan(ctx, scanner.Options{
			Root:        root,
			Recursive:   opts.Recursive,
			MaxFileSize: o.maxFileSize(),
		})
		if err != nil {
			return nil, o.rootError(root, err)
		}
		rec = tracking.NewRecord()
	} else {
		mode = MsgIncremental
		candidates, err = o.tracking.ChangedFiles(ctx, root, opts.Recursive)
		if err != nil {
			return nil, o.rootError(root, err)
		}
		if len(candidates) == 0 {
			slog.Info("index_up_to_date", slog.String("path", root))
			return &Result{
				Path:           root,
				Status:         StatusSuccess,
				Message:        MsgUpToDate,
				ElapsedSeconds: elapsed(start, o.now()),
			}, nil
		}

		vs, err = o.stores.For(root)
		if err != nil {
			return nil, kberrors.Wrap(kberrors.ErrCodeStoreFailed, err)
		}
		created, err := o.ensureCollection(ctx, vs, name)
		if err != nil {
			return nil, err
		}
		rec = o.tracking.Load(root)
		if created && len(rec.Files) > 0 {
			// Collection lost under a live record: rebuild everything.
			slog.Warn("collection_missing_reindex",
				slog.String("path", root),
				slog.Int("tracked_files", len(rec.Files)))
			mode = MsgFullReindex
			candidates, err = scanner.Scan(ctx, scanner.Options{
				Root:        root,
				Recursive:   opts.Recursive,
				MaxFileSize: o.maxFileSize(),
			})
			if err != nil {
				return nil, o.rootError(root, err)
			}
			rec = tracking.NewRecord()
		}
		for _, f := range candidates {
			expr := filter.Compare{Field: filter.FieldPath, Op: filter.OpEq, Value: filter.String(f.Path)}
			if _, err := vs.Delete(ctx, name, expr); err != nil {
				slog.Debug("index_delete_failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			}
		}
	}
	timing.scan = o.now().Sub(scanStart)

	slog.Info("index_candidates",
		slog.String("path", root),
		slog.String("mode", mode),
		slog.Int("files", len(candidates)))

	chunkStart := o.now()
	chunks := o.chunkFiles(ctx, candidates, p)
	timing.chunk = o.now().Sub(chunkStart)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Path:           root,
		Status:         StatusSuccess,
		Message:        mode,
		ProcessedFiles: len(candidates),
		TotalChunks:    len(chunks),
		Files:          firstBasenames(candidates, maxResultFiles),
	}

	if len(chunks) > 0 {
		embedStart := o.now()
		vectors, err := o.embedChunks(ctx, chunks, p)
		if err != nil {
			return nil, err
		}
		timing.embed = o.now().Sub(embedStart)

		indexStart := o.now()
		p.update(ui.ProgressEvent{Stage: ui.StageIndexing, Message: fmt.Sprintf("Inserting %d chunks...", len(chunks))})
		entities := make([]store.Entity, len(chunks))
		for i, c := range chunks {
			entities[i] = buildEntity(c, vectors[i])
		}
		if err := vs.Insert(ctx, name, entities); err != nil {
			return nil, kberrors.New(kberrors.ErrCodeStoreFailed, "failed to insert chunks", err)
		}
		timing.index = o.now().Sub(indexStart)
	} else {
		result.Message = MsgNoContent
		result.Files = nil
	}

	rec.Root = root
	for _, f := range candidates {
		st, err := tracking.Stat(f.Path)
		if err != nil {
			slog.Debug("tracking_file_skipped", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		rec.Files[f.Path] = st
	}
	rec.Touch(o.now())
	if err := o.tracking.Save(root, rec); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeIndexFailed, "failed to save tracking record", err)
	}

	duration := o.now().Sub(start)
	result.ElapsedSeconds = elapsed(start, o.now())

	if opts.Renderer != nil {
		opts.Renderer.Complete(ui.CompletionStats{
			Files:    result.ProcessedFiles,
			Chunks:   result.TotalChunks,
			Duration: duration,
			Stages: ui.StageTimings{
				Scan:  timing.scan,
				Chunk: timing.chunk,
				Embed: timing.embed,
				Index: timing.index,
			},
			Embedder: ui.EmbedderInfo{
				Model:      o.embedder.ModelName(),
				Dimensions: o.embedder.Dimensions(),
			},
		})
	}

	slog.Info("index_complete",
		slog.String("path", root),
		slog.String("mode", mode),
		slog.Int("files", result.ProcessedFiles),
		slog.Int("chunks", result.TotalChunks),
		slog.Int64("duration_total_ms", duration.Milliseconds()),
		slog.Int64("duration_scan_ms", timing.scan.Milliseconds()),
		slog.Int64("duration_chunk_ms", timing.chunk.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.embed.Milliseconds()),
		slog.Int64("duration_index_ms", timing.index.Milliseconds()))

	return result, nil
}

// checkRoot resolves root and applies the allowed-directories policy.
func (o *Orchestrator) checkRoot(root string) (string, error) {
	if root == "" {
		return "", kberrors.New(kberrors.ErrCodeInvalidPath, "path is required", nil)
	}
	abs := config.ResolvePath(root)
	if !o.cfg.IsPathAllowed(abs) {
		return "", kberrors.PathDenied(abs)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", o.rootError(abs, err)
	}
	if !info.IsDir() {
		return "", kberrors.New(kberrors.ErrCodeInvalidPath, fmt.Sprintf("Not a directory: %s", abs), nil).
			WithDetail("path", abs)
	}
	return abs, nil
}

// rootError classifies a failure to read root.
func (o *Orchestrator) rootError(root string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return kberrors.New(kberrors.ErrCodeFilePermission, fmt.Sprintf("Permission denied: %s", root), err).
			WithDetail("path", root)
	case errors.Is(err, fs.ErrNotExist):
		return kberrors.New(kberrors.ErrCodeFileNotFound, fmt.Sprintf("Directory does not exist: %s", root), err).
			WithDetail("path", root)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return kberrors.New(kberrors.ErrCodeIndexFailed, err.Error(), err).WithDetail("path", root)
}

func (o *Orchestrator) maxFileSize() int64 {
	return int64(o.cfg.Index.MaxFileSizeMB) * 1024 * 1024
}

// ensureCollection creates the collection if it is missing and reports
// whether it had to. A collection built with a different embedding
// dimension cannot be reused.
func (o *Orchestrator) ensureCollection(ctx context.Context, vs store.VectorStore, name string) (bool, error) {
	exists, err := vs.HasCollection(ctx, name)
	if err != nil {
		return false, kberrors.Wrap(kberrors.ErrCodeStoreFailed, err)
	}
	dim := o.embedder.Dimensions()
	if err := vs.CreateCollection(ctx, name, dim); err != nil {
		var mismatch store.ErrDimensionMismatch
		if errors.As(err, &mismatch) {
			return false, kberrors.New(kberrors.ErrCodeDimensionMismatch, mismatch.Error(), err).
				WithSuggestion("the embedding model changed; reindex with --force")
		}
		return false, kberrors.New(kberrors.ErrCodeStoreFailed, "failed to create collection", err)
	}
	return !exists, nil
}

// chunkFiles extracts and chunks every candidate. A file that cannot be
// read contributes no chunks; the pass continues.
func (o *Orchestrator) chunkFiles(ctx context.Context, files []scanner.FileInfo, p progress) []chunk.Chunk {
	var all []chunk.Chunk
	for i, f := range files {
		if ctx.Err() != nil {
			return nil
		}
		p.update(ui.ProgressEvent{
			Stage:       ui.StageChunking,
			Current:     i + 1,
			Total:       len(files),
			CurrentFile: f.RelPath,
		})

		md := o.extractor.Metadata(ctx, f.Path)
		text, err := o.extractor.Text(ctx, f.Path)
		if err != nil {
			slog.Warn("index_extraction_failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			p.warn(f.RelPath, fmt.Errorf("failed to extract: %w", err))
			continue
		}
		kind := f.Kind
		if kind == filetype.Unknown {
			kind = filetype.FromPath(f.Path)
		}
		all = append(all, o.pipeline.Chunk(kind, f.Path, text, md)...)
	}
	slog.Debug("index_chunking_complete", slog.Int("chunks", len(all)), slog.Int("files", len(files)))
	return all
}

// embedChunks embeds chunk texts in batches, preserving order.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []chunk.Chunk, p progress) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += o.batchSize {
		end := min(start+o.batchSize, len(chunks))
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		batch, err := o.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if kberrors.GetCode(err) != "" {
				return nil, err
			}
			return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "failed to generate embeddings", err)
		}
		if len(batch) != len(texts) {
			return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embedder returned %d vectors for %d texts", len(batch), len(texts)), nil)
		}
		vectors = append(vectors, batch...)

		p.update(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: end, Total: len(chunks)})
	}
	return vectors, nil
}

// ShouldRefresh reports whether root is due for an opportunistic
// incremental pass: refresh is enabled and the refresh interval has
// elapsed since the last pass.
func (o *Orchestrator) ShouldRefresh(root string) bool {
	if !o.cfg.Refresh.Enabled {
		return false
	}
	rec := o.tracking.Load(config.ResolvePath(root))
	return o.now().Sub(rec.LastCheckedTime()) >= o.cfg.Refresh.Interval
}

// RefreshIfNeeded runs an incremental pass when ShouldRefresh says so.
// It returns nil when no pass was due.
func (o *Orchestrator) RefreshIfNeeded(ctx context.Context, root string) (*Result, error) {
	if !o.ShouldRefresh(root) {
		return nil, nil
	}
	slog.Debug("auto_refresh", slog.String("path", root))
	return o.Index(ctx, root, Options{Recursive: true})
}

func elapsed(start, end time.Time) float64 {
	ms := end.Sub(start).Milliseconds()
	return float64(ms/10) / 100
}

func firstBasenames(files []scanner.FileInfo, n int) []string {
	out := make([]string, 0, min(n, len(files)))
	for _, f := range files {
		if len(out) == n {
			break
		}
		out = append(out, filepath.Base(f.Path))
	}
	return out
}

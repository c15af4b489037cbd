package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (default, no network)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider parses a provider name.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic, nil
	case "ollama":
		return ProviderOllama, nil
	}
	return "", fmt.Errorf("unknown embedding provider %q (valid: static, ollama)", s)
}

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	OllamaHost string
	Timeout    time.Duration

	// QueryCacheSize is the in-memory query LRU size (0 = default).
	QueryCacheSize int

	// DiskCachePath enables the document embedding cache when set.
	DiskCachePath string
}

// NewEmbedder creates the configured embedder wrapped in caches.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var inner Embedder
	switch opts.Provider {
	case ProviderStatic, "":
		inner = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		o, err := NewOllamaEmbedder(ctx, OllamaConfig{
			Host:    opts.OllamaHost,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = o
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	var disk *DiskCache
	if opts.DiskCachePath != "" {
		d, err := OpenDiskCache(opts.DiskCachePath)
		if err != nil {
			// Another process may hold the cache; run without it.
			slog.Warn("embedding_cache_unavailable",
				slog.String("path", opts.DiskCachePath),
				slog.String("error", err.Error()))
		} else {
			disk = d
		}
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()),
		slog.Bool("disk_cache", disk != nil))

	return NewCachedEmbedder(inner, opts.QueryCacheSize, disk), nil
}

// Lazy is an Embedder that creates the real one on first use and keeps
// it until Close. Creation errors are returned from every call until a
// later attempt succeeds.
type Lazy struct {
	opts Options
	newE func(context.Context, Options) (Embedder, error)

	mu  sync.Mutex
	emb Embedder
}

// Verify interface implementation at compile time
var _ Embedder = (*Lazy)(nil)

// NewLazy creates a lazy embedder for opts.
func NewLazy(opts Options) *Lazy {
	return &Lazy{opts: opts, newE: NewEmbedder}
}

// Get returns the underlying embedder, creating it if needed.
func (l *Lazy) Get(ctx context.Context) (Embedder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.emb != nil {
		return l.emb, nil
	}
	emb, err := l.newE(ctx, l.opts)
	if err != nil {
		return nil, err
	}
	l.emb = emb
	return emb, nil
}

// Embed implements Embedder.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return emb.Embed(ctx, text)
}

// EmbedBatch implements Embedder.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	emb, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return emb.EmbedBatch(ctx, texts)
}

// Dimensions creates the embedder if needed; on failure it reports the
// configured dimensions.
func (l *Lazy) Dimensions() int {
	emb, err := l.Get(context.Background())
	if err != nil {
		if l.opts.Dimensions > 0 {
			return l.opts.Dimensions
		}
		return DefaultDimensions
	}
	return emb.Dimensions()
}

// ModelName returns the configured model without creating the embedder.
func (l *Lazy) ModelName() string {
	l.mu.Lock()
	emb := l.emb
	l.mu.Unlock()
	if emb != nil {
		return emb.ModelName()
	}
	if l.opts.Provider == ProviderOllama {
		return l.opts.Model
	}
	return string(ProviderStatic)
}

// Close releases the underlying embedder if it was created.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.emb == nil {
		return nil
	}
	err := l.emb.Close()
	l.emb = nil
	return err
}

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// DefaultOllamaHost is the default Ollama API endpoint
const DefaultOllamaHost = "http://localhost:11434"

// DefaultOllamaModel is the default Ollama embedding model.
const DefaultOllamaModel = "nomic-embed-text"

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use (default: nomic-embed-text)
	Model string

	// Dimensions can be set to override auto-detection (0 = auto-detect)
	Dimensions int

	// BatchSize bounds texts per request (default: 64)
	BatchSize int

	// Timeout is the HTTP client timeout per request (default: 60s)
	Timeout time.Duration

	// Retry controls backoff for transient failures.
	Retry kberrors.RetryConfig

	// QueryPrefix and DocumentPrefix are prepended to query and document
	// texts. Defaults are chosen per model family.
	QueryPrefix    string
	DocumentPrefix string

	// SkipHealthCheck skips dimension detection at construction (for testing)
	SkipHealthCheck bool
}

// ollamaEmbedRequest is the Ollama /api/embed request
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the Ollama /api/embed response
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates a new Ollama embedder. Unless dimensions are
// configured, one probe request detects them.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = kberrors.DefaultRetryConfig()
	}
	if cfg.QueryPrefix == "" && cfg.DocumentPrefix == "" && strings.HasPrefix(cfg.Model, "nomic-embed") {
		cfg.QueryPrefix = "search_query: "
		cfg.DocumentPrefix = "search_document: "
	}

	e := &OllamaEmbedder{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		dims:   cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck && e.dims == 0 {
		vecs, err := e.embedWithRetry(ctx, []string{"dimension probe"})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Ollama at %s: %w", cfg.Host, err)
		}
		e.dims = len(vecs[0])
		slog.Debug("ollama_dimensions_detected",
			slog.String("model", cfg.Model),
			slog.Int("dimensions", e.dims))
	}
	if e.dims == 0 {
		e.dims = DefaultDimensions
	}
	return e, nil
}

// Embed generates the embedding of a query.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{e.config.QueryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates document embeddings in BatchSize requests.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))
		batch := make([]string, end-start)
		for i, t := range texts[start:end] {
			batch[i] = e.config.DocumentPrefix + t
		}
		vecs, err := e.embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	vecs, err := e.embedWithRetry(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		if len(v) != e.dims {
			return nil, kberrors.New(kberrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model %s returned %d dimensions, expected %d", e.config.Model, len(v), e.dims), nil)
		}
	}
	return vecs, nil
}

func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	attempt := 0
	return kberrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
		attempt++
		vecs, err := e.doEmbed(ctx, texts)
		if err != nil {
			slog.Debug("embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts_count", len(texts)),
				slog.String("error", err.Error()))
		}
		return vecs, err
	})
}

// doEmbed performs a single /api/embed request. Connection failures and
// 5xx responses are retryable; other failures are not.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeNetworkUnavailable, "ollama request failed", err).
			WithSuggestion("check that Ollama is running: ollama serve")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, kberrors.New(kberrors.ErrCodeNetworkUnavailable, msg, nil)
		}
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, msg, nil).
			WithSuggestion(fmt.Sprintf("pull the model first: ollama pull %s", e.config.Model))
	}

	var apiResult ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed, "failed to decode response", err)
	}
	if len(apiResult.Embeddings) != len(texts) {
		return nil, kberrors.New(kberrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(apiResult.Embeddings)), nil)
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		embedding := make([]float32, len(emb))
		for j, v := range emb {
			embedding[j] = float32(v)
		}
		embeddings[i] = normalizeVector(embedding)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}

// Package config loads amankb configuration from defaults, the user
// config file, a .env file and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Refresh    RefreshConfig    `yaml:"refresh" json:"refresh"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig locates state on disk and restricts which roots may be indexed.
type PathsConfig struct {
	// CacheDir holds one subdirectory per indexed root (tracking file,
	// vector database).
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// AllowedDirs bounds the roots that may be indexed or searched.
	// Empty means no restriction.
	AllowedDirs []string `yaml:"allowed_dirs" json:"allowed_dirs"`

	// Registry is the YAML file naming knowledge bases.
	Registry string `yaml:"registry" json:"registry"`
}

// IndexConfig tunes discovery, chunking and embedding batches.
type IndexConfig struct {
	ChunkSize           int  `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap        int  `yaml:"chunk_overlap" json:"chunk_overlap"`
	MinChunkChars       int  `yaml:"min_chunk_chars" json:"min_chunk_chars"`
	EmbedBatchSize      int  `yaml:"embed_batch_size" json:"embed_batch_size"`
	MaxFileSizeMB       int  `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	SkipNotebookOutputs bool `yaml:"skip_notebook_outputs" json:"skip_notebook_outputs"`
	Workers             int  `yaml:"workers" json:"workers"`
}

// RefreshConfig controls opportunistic incremental indexing before search.
type RefreshConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	Limit     int     `yaml:"limit" json:"limit"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// EmbeddingsConfig selects and configures the embedder.
type EmbeddingsConfig struct {
	// Provider is "static" (offline hashing) or "ollama".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// QueryCacheSize is the number of query vectors kept in memory.
	QueryCacheSize int `yaml:"query_cache_size" json:"query_cache_size"`

	// DiskCache persists document vectors keyed by model and content.
	DiskCache bool `yaml:"disk_cache" json:"disk_cache"`
}

// Server transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// ServerConfig configures the tool server.
type ServerConfig struct {
	Name     string `yaml:"name" json:"name"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Transport is "stdio" or "http".
	Transport string `yaml:"transport" json:"transport"`
	HTTPAddr  string `yaml:"http_addr" json:"http_addr"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	home := homeDir()
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			CacheDir:    filepath.Join(home, ".aix", "knowledge"),
			AllowedDirs: []string{home},
			Registry:    filepath.Join(home, ".aix", "knowledges.yaml"),
		},
		Index: IndexConfig{
			ChunkSize:      512,
			ChunkOverlap:   100,
			MinChunkChars:  50,
			EmbedBatchSize: 1000,
			MaxFileSizeMB:  10,
			Workers:        min(4, runtime.NumCPU()),
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: 300 * time.Second,
		},
		Search: SearchConfig{
			Limit:     10,
			Threshold: 0.5,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "static",
			Model:          "nomic-embed-text",
			Dimensions:     768,
			OllamaHost:     "http://localhost:11434",
			Timeout:        60 * time.Second,
			QueryCacheSize: 256,
			DiskCache:      true,
		},
		Server: ServerConfig{
			Name:      "amankb",
			LogLevel:  "info",
			Transport: TransportStdio,
			HTTPAddr:  "127.0.0.1:8765",
		},
	}
}

// GetUserConfigPath returns the user config file, honoring AMANKB_CONFIG.
func GetUserConfigPath() string {
	if p := os.Getenv("AMANKB_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(homeDir(), ".aix", "amankb.yaml")
}

// Load applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.aix/amankb.yaml)
//  3. .env in the working directory (never overrides real env vars)
//  4. Environment variables
func Load() (*Config, error) {
	return LoadFile(GetUserConfigPath())
}

// LoadFile is Load with an explicit config file path. A missing file is
// not an error.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnvOverrides()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep their defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAG_CACHE_DIR"); v != "" {
		c.Paths.CacheDir = v
	}
	if v := os.Getenv("KB_REGISTRY"); v != "" {
		c.Paths.Registry = v
	}
	if v := os.Getenv("KB_ALLOWED_DIRS"); v != "" {
		c.Paths.AllowedDirs = splitList(v)
	}
	if n, ok := envInt("RAG_CHUNK_SIZE"); ok && n > 0 {
		c.Index.ChunkSize = n
	}
	if n, ok := envInt("RAG_CHUNK_OVERLAP"); ok && n >= 0 {
		c.Index.ChunkOverlap = n
	}
	if n, ok := envInt("RAG_MAX_FILE_SIZE_MB"); ok && n > 0 {
		c.Index.MaxFileSizeMB = n
	}
	if v := os.Getenv("RAG_SKIP_NOTEBOOK_OUTPUTS"); v != "" {
		c.Index.SkipNotebookOutputs = parseBool(v)
	}
	if v := os.Getenv("RAG_AUTO_REFRESH"); v != "" {
		c.Refresh.Enabled = parseBool(v)
	}
	if v := os.Getenv("RAG_REFRESH_INTERVAL"); v != "" {
		// Bare numbers are seconds.
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			c.Refresh.Interval = time.Duration(secs) * time.Second
		} else if d, err := time.ParseDuration(v); err == nil {
			c.Refresh.Interval = d
		}
	}
	if n, ok := envInt("RAG_SEARCH_LIMIT"); ok && n > 0 {
		c.Search.Limit = n
	}
	if v := os.Getenv("RAG_SEARCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.Threshold = f
		}
	}
	if v := os.Getenv("RAG_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RAG_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("AMANKB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		c.Server.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("MCP_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
}

func (c *Config) expandPaths() {
	c.Paths.CacheDir = ExpandHome(c.Paths.CacheDir)
	c.Paths.Registry = ExpandHome(c.Paths.Registry)
	for i, d := range c.Paths.AllowedDirs {
		c.Paths.AllowedDirs[i] = ExpandHome(d)
	}
}

// Validate rejects values the indexer or searcher cannot work with.
func (c *Config) Validate() error {
	if c.Paths.CacheDir == "" {
		return fmt.Errorf("paths.cache_dir must not be empty")
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}
	if c.Index.EmbedBatchSize <= 0 {
		return fmt.Errorf("index.embed_batch_size must be positive, got %d", c.Index.EmbedBatchSize)
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("search.threshold must be between 0 and 1, got %f", c.Search.Threshold)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// IsPathAllowed reports whether path lies inside one of the allowed
// directories. Symlinks are resolved on both sides when possible.
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.Paths.AllowedDirs) == 0 {
		return true
	}
	target := resolve(path)
	for _, dir := range c.Paths.AllowedDirs {
		base := resolve(ExpandHome(dir))
		rel, err := filepath.Rel(base, target)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// ResolvePath expands "~", makes path absolute and resolves symlinks
// when the target exists. Roots are always keyed by their resolved path.
func ResolvePath(path string) string {
	return resolve(ExpandHome(strings.TrimSpace(path)))
}

func resolve(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return filepath.Clean(abs)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

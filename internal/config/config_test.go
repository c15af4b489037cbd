package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: defaults match the indexing and search contract
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 512, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	assert.Equal(t, 50, cfg.Index.MinChunkChars)
	assert.Equal(t, 1000, cfg.Index.EmbedBatchSize)
	assert.Equal(t, 10, cfg.Index.MaxFileSizeMB)
	assert.False(t, cfg.Index.SkipNotebookOutputs)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, 300*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Equal(t, 0.5, cfg.Search.Threshold)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Contains(t, cfg.Paths.CacheDir, filepath.Join(".aix", "knowledge"))
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Index.ChunkSize)
}

func TestLoadFile_YAMLOverridesOnlyPresentKeys(t *testing.T) {
	// Given: a config file touching a few keys
	path := filepath.Join(t.TempDir(), "amankb.yaml")
	content := `
index:
  chunk_size: 256
refresh:
  enabled: false
  interval: 90s
search:
  threshold: 0.25
paths:
  allowed_dirs: ["~/notes"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When
	cfg, err := LoadFile(path)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Index.ChunkSize)
	assert.Equal(t, 100, cfg.Index.ChunkOverlap)
	assert.False(t, cfg.Refresh.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, 0.25, cfg.Search.Threshold)
	assert.Equal(t, 10, cfg.Search.Limit)
	home, _ := os.UserHomeDir()
	assert.Equal(t, []string{filepath.Join(home, "notes")}, cfg.Paths.AllowedDirs)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amankb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index: [oops"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	// Given: environment overrides
	cache := t.TempDir()
	t.Setenv("RAG_CACHE_DIR", cache)
	t.Setenv("RAG_CHUNK_SIZE", "300")
	t.Setenv("RAG_CHUNK_OVERLAP", "30")
	t.Setenv("RAG_AUTO_REFRESH", "false")
	t.Setenv("RAG_REFRESH_INTERVAL", "60")
	t.Setenv("RAG_SEARCH_LIMIT", "5")
	t.Setenv("RAG_SEARCH_THRESHOLD", "0.1")
	t.Setenv("RAG_SKIP_NOTEBOOK_OUTPUTS", "yes")
	t.Setenv("KB_ALLOWED_DIRS", "/a, /b")
	t.Setenv("RAG_EMBED_PROVIDER", "ollama")

	// When
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))

	// Then
	require.NoError(t, err)
	assert.Equal(t, cache, cfg.Paths.CacheDir)
	assert.Equal(t, 300, cfg.Index.ChunkSize)
	assert.Equal(t, 30, cfg.Index.ChunkOverlap)
	assert.False(t, cfg.Refresh.Enabled)
	assert.Equal(t, time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, 5, cfg.Search.Limit)
	assert.Equal(t, 0.1, cfg.Search.Threshold)
	assert.True(t, cfg.Index.SkipNotebookOutputs)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Paths.AllowedDirs)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Index.ChunkSize = 0 }},
		{"overlap too big", func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize }},
		{"threshold above one", func(c *Config) { c.Search.Threshold = 1.5 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mystery" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }},
		{"bad transport", func(c *Config) { c.Server.Transport = "sse" }},
		{"zero batch", func(c *Config) { c.Index.EmbedBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsPathAllowed(t *testing.T) {
	// Given: a single allowed directory
	allowed := t.TempDir()
	inside := filepath.Join(allowed, "notes")
	require.NoError(t, os.MkdirAll(inside, 0o755))
	cfg := NewConfig()
	cfg.Paths.AllowedDirs = []string{allowed}

	// Then
	assert.True(t, cfg.IsPathAllowed(allowed))
	assert.True(t, cfg.IsPathAllowed(inside))
	assert.False(t, cfg.IsPathAllowed(t.TempDir()))
	assert.False(t, cfg.IsPathAllowed(allowed+"-sibling"))

	cfg.Paths.AllowedDirs = nil
	assert.True(t, cfg.IsPathAllowed("/anywhere"))
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "amankb.yaml")
	cfg := NewConfig()
	cfg.Search.Limit = 7

	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Search.Limit)
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, filepath.Join(home, "x"), ExpandHome("~/x"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
}

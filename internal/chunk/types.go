// Package chunk splits extracted document text into overlapping,
// embedding-sized chunks.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/Aman-CERP/amankb/internal/metadata"
)

// Chunk size defaults.
const (
	DefaultChunkTokens   = 512
	DefaultOverlapTokens = 100
	DefaultMinChars      = 50
	CharsPerToken        = 4 // rough approximation: 4 chars = 1 token
)

// Chunk is one span of a document prepared for embedding. Chunks are not
// persisted on their own; the indexer turns them into stored entities.
type Chunk struct {
	ID         string
	Text       string
	SourcePath string
	Filename   string
	Index      int    // position within the source document
	HeaderPath string // "Title > Section" for prose, empty otherwise
	Metadata   metadata.DocumentMetadata
}

// Options configures chunk sizes. Zero values take the defaults.
type Options struct {
	ChunkTokens   int
	OverlapTokens int
	MinChars      int
}

func (o Options) withDefaults() Options {
	if o.ChunkTokens <= 0 {
		o.ChunkTokens = DefaultChunkTokens
	}
	if o.OverlapTokens < 0 || o.OverlapTokens >= o.ChunkTokens {
		o.OverlapTokens = min(DefaultOverlapTokens, o.ChunkTokens/2)
	}
	if o.MinChars <= 0 {
		o.MinChars = DefaultMinChars
	}
	return o
}

// estimateTokens estimates the number of tokens in content.
func estimateTokens(content string) int {
	return len(content) / CharsPerToken
}

// generateChunkID derives a stable ID from the file path, the chunk's
// position and its content.
func generateChunkID(path string, index int, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	input := fmt.Sprintf("%s:%d:%s", path, index, hex.EncodeToString(contentHash[:8]))
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

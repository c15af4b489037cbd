package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates embeddings by feature hashing: word unigrams,
// adjacent word pairs and character trigrams are hashed into signed
// buckets. It needs no network or model and is deterministic, at the cost
// of semantic quality.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*StaticEmbedder)(nil)

// Feature weights
const (
	wordWeight    = 1.0
	pairWeight    = 0.5
	trigramWeight = 0.25
)

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "with": true,
	"def": true, "import": true, "return": true, "self": true, "none": true,
}

// NewStaticEmbedder creates a static embedder producing dims-sized
// vectors (0 = DefaultDimensions).
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed generates the embedding of a query. Queries and documents share
// one vector space.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	return e.vector(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = e.vector(text)
	}
	return results, nil
}

func (e *StaticEmbedder) vector(text string) []float32 {
	vector := make([]float32, e.dims)
	tokens := words(text)
	if len(tokens) == 0 {
		return vector
	}

	for i, w := range tokens {
		e.add(vector, "w:"+w, wordWeight)
		if i > 0 {
			e.add(vector, "p:"+tokens[i-1]+" "+w, pairWeight)
		}
		for _, tri := range trigrams(w) {
			e.add(vector, "t:"+tri, trigramWeight)
		}
	}
	return normalizeVector(vector)
}

// add hashes feature into a bucket; one hash bit picks the sign so
// collisions tend to cancel out.
func (e *StaticEmbedder) add(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[idx] += weight
}

// words lowercases text and returns its non-stop-word tokens.
func words(text string) []string {
	var out []string
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

// trigrams returns the character trigrams of a word padded with spaces.
func trigrams(word string) []string {
	runes := []rune(" " + word + " ")
	if len(runes) < 3 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		if unicode.IsSpace(runes[i]) && unicode.IsSpace(runes[i+2]) {
			continue
		}
		out = append(out, string(runes[i:i+3]))
	}
	return out
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return fmt.Sprintf("static-%d", e.dims)
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

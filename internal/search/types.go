// Package search answers semantic queries against indexed knowledge
// roots: single-root search with metadata filters, registry-wide
// aggregate search, and read-only tag and field reports.
package search

import (
	"context"

	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/metadata"
	"github.com/Aman-CERP/amankb/internal/registry"
)

// Sample sizes for the read-only reports.
const (
	TagSampleSize   = 10000
	FieldSampleSize = 100
	maxExamples     = 5
)

// Options configures a search query.
type Options struct {
	// Tags restricts results to chunks carrying every tag (AND).
	Tags []string

	// Metadata holds equality filters ("strategy": "momentum") and raw
	// comparisons ("sharpe": "> 1.5").
	Metadata map[string]any

	// Limit is the maximum number of results (0 = configured default).
	Limit int

	// Threshold is the minimum score kept, inclusive.
	Threshold float64
}

// Result is one matching chunk.
type Result struct {
	Text          string                    `json:"text"`
	Filename      string                    `json:"filename"`
	Path          string                    `json:"path"`
	Score         float64                   `json:"score"`
	Metadata      metadata.DocumentMetadata `json:"metadata"`
	KnowledgeBase string                    `json:"knowledge_base,omitempty"`
}

// TagCount is one tag with the number of chunks carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// FieldInfo describes a filterable metadata field with sample values.
type FieldInfo struct {
	Type     string   `json:"type"`
	Examples []string `json:"examples"`
}

// Refresher runs an incremental pass when a root is due for one.
type Refresher interface {
	RefreshIfNeeded(ctx context.Context, root string) (*index.Result, error)
}

// RootSource lists the registered knowledge roots searched by the
// aggregate operations.
type RootSource interface {
	Roots() ([]registry.Root, error)
}

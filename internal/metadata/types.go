// Package metadata extracts structured metadata and indexable text from
// knowledge files: Markdown prose with YAML front-matter, Python sources
// and Jupyter notebooks.
package metadata

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

// DocumentMetadata is the metadata extracted from one file. Kind-specific
// fields are zero (and omitted from JSON) when they do not apply.
type DocumentMetadata struct {
	FileType  string   `json:"file_type,omitempty"`
	Tags      []string `json:"tags"`
	Created   string   `json:"created,omitempty"`
	Author    string   `json:"author,omitempty"`
	TypeField string   `json:"type_field,omitempty"`

	// Prose front-matter
	Strategy string   `json:"strategy,omitempty"`
	Sharpe   *float64 `json:"sharpe,omitempty"`
	CAGR     *float64 `json:"cagr,omitempty"`
	Drawdown *float64 `json:"drawdown,omitempty"`

	// Source code structure
	ModuleName string   `json:"module_name,omitempty"`
	Classes    []string `json:"classes,omitempty"`
	Functions  []string `json:"functions,omitempty"`
	Imports    []string `json:"imports,omitempty"`
	HasMain    bool     `json:"has_main,omitempty"`

	// Notebook structure
	KernelSpec        string `json:"kernel_spec,omitempty"`
	CellCount         *int   `json:"cell_count,omitempty"`
	CodeCellCount     *int   `json:"code_cell_count,omitempty"`
	MarkdownCellCount *int   `json:"markdown_cell_count,omitempty"`

	Custom map[string]any `json:"custom"`
}

// Minimal returns the record used when a file of kind cannot be parsed.
func Minimal(kind filetype.Kind) DocumentMetadata {
	return DocumentMetadata{
		FileType: string(kind),
		Tags:     []string{},
		Custom:   map[string]any{},
	}
}

// normalize guarantees non-nil Tags and Custom so JSON output is stable.
func (m *DocumentMetadata) normalize() {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	if m.Custom == nil {
		m.Custom = map[string]any{}
	}
}

// HasTag reports whether tag is present.
func (m DocumentMetadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// JSON serializes the metadata. Values that cannot be encoded (for
// example exotic front-matter in Custom) are dropped from Custom rather
// than failing the whole record.
func (m DocumentMetadata) JSON() string {
	m.normalize()
	data, err := json.Marshal(m)
	if err == nil {
		return string(data)
	}
	m.Custom = map[string]any{}
	data, err = json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Decode parses metadata JSON. Invalid input yields an empty record and
// ok=false; callers decide whether that matters.
func Decode(s string) (DocumentMetadata, bool) {
	var m DocumentMetadata
	if s == "" {
		m.normalize()
		return m, false
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		m = DocumentMetadata{}
		m.normalize()
		return m, false
	}
	m.normalize()
	return m, true
}

// parseFloatSafe coerces a front-matter value to float. Anything that is
// not a finite number yields nil.
func parseFloatSafe(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intPtr(n int) *int { return &n }

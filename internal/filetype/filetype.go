// Package filetype maps file extensions to the document kinds amankb indexes.
package filetype

import (
	"path/filepath"
	"strings"
)

// Kind is a supported document kind.
type Kind string

const (
	Unknown    Kind = ""
	Prose      Kind = "md"
	SourceCode Kind = "py"
	Notebook   Kind = "ipynb"
)

// extToKind folds Cython sources into SourceCode.
var extToKind = map[string]Kind{
	"md":       Prose,
	"markdown": Prose,
	"py":       SourceCode,
	"pyx":      SourceCode,
	"ipynb":    Notebook,
}

// Classify returns the kind for ext. The leading dot is optional and
// matching is case-insensitive. Unrecognized extensions yield Unknown.
func Classify(ext string) Kind {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return extToKind[ext]
}

// FromPath classifies a file by its extension.
func FromPath(path string) Kind {
	return Classify(filepath.Ext(path))
}

// Supported reports whether k is one of the indexed kinds.
func (k Kind) Supported() bool {
	return k != Unknown
}

// String returns the kind name used in stored metadata.
func (k Kind) String() string {
	if k == Unknown {
		return "unknown"
	}
	return string(k)
}

// Kinds lists the supported kinds in a stable order.
func Kinds() []Kind {
	return []Kind{Prose, SourceCode, Notebook}
}

// Package scanner discovers indexable documents under a knowledge root.
// It skips hidden files and directories and files of unsupported kinds.
package scanner

import (
	"time"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

// DefaultMaxFileSize is the default maximum size for code and notebook
// files (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// FileInfo contains metadata about a discovered file.
type FileInfo struct {
	Path    string        // Absolute path
	RelPath string        // Relative to the scan root
	Kind    filetype.Kind // Prose, SourceCode or Notebook
	Size    int64
	ModTime time.Time
}

// Options configures a scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// Recursive descends into subdirectories. When false only the top
	// level of Root is listed.
	Recursive bool

	// MaxFileSize caps code and notebook files in bytes (0 = 10MB
	// default). Prose files are never skipped for size.
	MaxFileSize int64
}

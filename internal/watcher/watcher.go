// Package watcher keeps a knowledge root indexed while it changes.
//
// File events are collected with fsnotify (or, where fsnotify is not
// available, by periodic polling), coalesced by a Debouncer and turned
// into incremental index passes:
//
//	w, err := watcher.New(orch, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	return w.Run(ctx, "/path/to/notes")
package watcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event under the watched root.
type FileEvent struct {
	// Path is relative to the root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before a batch of events
	// triggers an index pass.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the pass interval when fsnotify is unavailable.
	// Default: 5s
	PollInterval time.Duration

	// Recursive watches subdirectories.
	Recursive bool

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		PollInterval:   5 * time.Second,
		Recursive:      true,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	return o
}

// relevant reports whether an event at rel could change the index:
// hidden paths are never indexed and only supported files count.
// Directories matter because their removal drops the files inside.
func relevant(rel string, isDir bool) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	if isDir {
		return true
	}
	return filetype.FromPath(rel) != filetype.Unknown
}

package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer

	errors   int
	warnings int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	return &PlainRenderer{out: out}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Tag(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Tag(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	level := "error"
	if event.IsWarn {
		level = "warn"
		r.warnings++
	} else {
		r.errors++
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", level, event.File, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", level, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	warnings := stats.Warnings
	if warnings == 0 {
		warnings = r.warnings
	}
	_, _ = fmt.Fprintf(r.out, "Indexed %d files, %d chunks in %s",
		stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if warnings > 0 || stats.Errors > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	st := stats.Stages
	if st.Embed > 0 {
		_, _ = fmt.Fprintf(r.out, "  scan %s  chunk %s  embed %s  store %s\n",
			st.Scan.Round(time.Millisecond), st.Chunk.Round(time.Millisecond),
			st.Embed.Round(time.Millisecond), st.Index.Round(time.Millisecond))
	}
	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintf(r.out, "  model %s (%d dims)\n", stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)

// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/registry"
	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

// snippetLen bounds the text shown per search result.
const snippetLen = 240

// Writer prints command output.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a message with an icon. Write errors are ignored.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf prints a formatted message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) { w.Status(icon, fmt.Sprintf(format, args...)) }

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status("✅", msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("⚠️ ", msg) }

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status("❌", msg) }

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// IndexResults prints one line per indexing pass.
func (w *Writer) IndexResults(results []*index.Result) {
	for _, r := range results {
		switch r.Status {
		case index.StatusError:
			w.Error(fmt.Sprintf("%s: %s", r.Path, r.Message))
		default:
			w.Success(fmt.Sprintf("%s: %s", r.Path, r.Message))
			if r.ProcessedFiles > 0 {
				w.Status("", fmt.Sprintf("%d files, %d chunks in %.1fs", r.ProcessedFiles, r.TotalChunks, r.ElapsedSeconds))
			}
			for _, f := range r.Files {
				w.Status("", "  "+f)
			}
		}
	}
}

// DropResults prints one line per dropped index.
func (w *Writer) DropResults(results []*index.DropResult) {
	for _, r := range results {
		if r.Status == index.StatusError {
			w.Error(r.Message)
			continue
		}
		w.Success(r.Message)
	}
}

// SearchResults prints ranked results with a text snippet.
func (w *Writer) SearchResults(query string, results []search.Result) {
	if len(results) == 0 {
		w.Status("🔍", fmt.Sprintf("No results for %q", query))
		return
	}
	w.Status("🔍", fmt.Sprintf("%d results for %q", len(results), query))
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "\n%d. %s  (%.4f)\n", i+1, r.Path, r.Score)
		var meta []string
		if r.KnowledgeBase != "" {
			meta = append(meta, "kb="+r.KnowledgeBase)
		}
		if r.Metadata.FileType != "" {
			meta = append(meta, "type="+r.Metadata.FileType)
		}
		if len(r.Metadata.Tags) > 0 {
			meta = append(meta, strings.Join(r.Metadata.Tags, " "))
		}
		if len(meta) > 0 {
			_, _ = fmt.Fprintf(w.out, "   %s\n", strings.Join(meta, "  "))
		}
		for _, line := range strings.Split(Snippet(r.Text, snippetLen), "\n") {
			_, _ = fmt.Fprintf(w.out, "   %s\n", line)
		}
	}
}

// Tags prints tags with their chunk counts.
func (w *Writer) Tags(tags []search.TagCount) {
	if len(tags) == 0 {
		w.Status("", "No tags found")
		return
	}
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	for _, t := range tags {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", t.Tag, t.Count)
	}
	_ = tw.Flush()
}

// Fields prints the filterable fields sorted by name.
func (w *Writer) Fields(fields map[string]search.FieldInfo) {
	if len(fields) == 0 {
		w.Status("", "No metadata fields found")
		return
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FIELD\tTYPE\tEXAMPLES")
	for _, name := range names {
		f := fields[name]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", name, f.Type, strings.Join(f.Examples, ", "))
	}
	_ = tw.Flush()
}

// Indexes prints the indexed roots.
func (w *Writer) Indexes(indexes []tracking.Summary) {
	if len(indexes) == 0 {
		w.Status("", "No indexes found")
		return
	}
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PATH\tFILES\tLAST CHECKED")
	for _, s := range indexes {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Root, s.FileCount, formatTime(s.LastChecked))
	}
	_ = tw.Flush()
}

// Knowledges prints the registered knowledge bases.
func (w *Writer) Knowledges(kbs []registry.Status) {
	if len(kbs) == 0 {
		w.Status("", "No knowledge bases registered")
		return
	}
	for _, kb := range kbs {
		header := kb.Name
		if kb.Description != "" {
			header += " - " + kb.Description
		}
		if len(kb.Tags) > 0 {
			header += "  [" + strings.Join(kb.Tags, ", ") + "]"
		}
		_, _ = fmt.Fprintln(w.out, header)
		for _, p := range kb.Paths {
			state := "not indexed"
			switch {
			case !p.Exists:
				state = "missing"
			case p.Indexed:
				state = "indexed"
			}
			_, _ = fmt.Fprintf(w.out, "   %s (%s)\n", p.Path, state)
		}
	}
}

// Snippet collapses blank lines and cuts s to n runes.
func Snippet(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, strings.TrimRight(l, " \t"))
		}
	}
	s = strings.Join(kept, "\n")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

// Parser is implemented once per document kind.
type Parser interface {
	Kind() filetype.Kind

	// ExtractMetadata never fails; unreadable or malformed input yields
	// the minimal record for the kind.
	ExtractMetadata(ctx context.Context, path string) DocumentMetadata

	// ExtractText returns the indexable text of the file.
	ExtractText(ctx context.Context, path string) (string, error)
}

// Options configures the Extractor.
type Options struct {
	SkipNotebookOutputs bool
}

// Extractor dispatches to the parser for a file's kind.
type Extractor struct {
	parsers map[filetype.Kind]Parser
}

// NewExtractor returns an Extractor with the three built-in parsers.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{
		parsers: map[filetype.Kind]Parser{
			filetype.Prose:      ProseParser{},
			filetype.SourceCode: SourceParser{},
			filetype.Notebook:   NotebookParser{SkipOutputs: opts.SkipNotebookOutputs},
		},
	}
}

// ParserFor returns the parser for kind.
func (e *Extractor) ParserFor(kind filetype.Kind) (Parser, bool) {
	p, ok := e.parsers[kind]
	return p, ok
}

// Metadata extracts metadata for path. Unsupported files get an empty
// record. A panic inside a parser is contained to this file.
func (e *Extractor) Metadata(ctx context.Context, path string) (md DocumentMetadata) {
	kind := filetype.FromPath(path)
	p, ok := e.parsers[kind]
	if !ok {
		return Minimal(filetype.Unknown)
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("metadata_extraction_failed",
				slog.String("path", path),
				slog.String("error", fmt.Sprint(r)))
			md = Minimal(kind)
		}
	}()
	md = p.ExtractMetadata(ctx, path)
	md.normalize()
	return md
}

// Text extracts the indexable text for path.
func (e *Extractor) Text(ctx context.Context, path string) (string, error) {
	kind := filetype.FromPath(path)
	p, ok := e.parsers[kind]
	if !ok {
		return "", fmt.Errorf("unsupported file type: %s", path)
	}
	return p.ExtractText(ctx, path)
}

package chunk

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/amankb/internal/filetype"
	"github.com/Aman-CERP/amankb/internal/metadata"
)

// Pipeline turns one document's text into chunks: section-aware for
// prose, whole-text for code and notebooks, then token windows, then the
// minimum-length filter.
type Pipeline struct {
	opts     Options
	splitter TokenSplitter
}

// NewPipeline creates a pipeline. Zero options take the defaults.
func NewPipeline(opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		opts:     opts,
		splitter: TokenSplitter{ChunkTokens: opts.ChunkTokens, OverlapTokens: opts.OverlapTokens},
	}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

type unit struct {
	headerPath string
	text       string
}

// Chunk splits text from path. Every chunk carries md.
func (p *Pipeline) Chunk(kind filetype.Kind, path, text string, md metadata.DocumentMetadata) []Chunk {
	var units []unit
	if kind == filetype.Prose {
		for _, s := range SplitSections(text) {
			units = append(units, unit{headerPath: s.HeaderPath, text: s.Text})
		}
	} else {
		units = []unit{{text: text}}
	}

	filename := filepath.Base(path)
	var chunks []Chunk
	for _, u := range units {
		for _, piece := range p.splitter.Split(u.text) {
			if !p.keep(piece) {
				continue
			}
			idx := len(chunks)
			chunks = append(chunks, Chunk{
				ID:         generateChunkID(path, idx, piece),
				Text:       piece,
				SourcePath: path,
				Filename:   filename,
				Index:      idx,
				HeaderPath: u.headerPath,
				Metadata:   md,
			})
		}
	}
	return chunks
}

// keep applies the minimum-length filter.
func (p *Pipeline) keep(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= p.opts.MinChars
}

package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amankb/internal/filetype"
	"github.com/Aman-CERP/amankb/internal/metadata"
)

func TestSplitSections_IgnoresHeadersInFences(t *testing.T) {
	// Given: markdown with preamble, nested headers and a fenced block
	content := "intro text\n# Title\nbody\n## Sub\n```sh\n# not a header\n```\nmore"

	// When
	sections := SplitSections(content)

	// Then
	require.Len(t, sections, 3)
	assert.Equal(t, 0, sections[0].Level)
	assert.Equal(t, "", sections[0].HeaderPath)
	assert.Equal(t, "Title", sections[1].HeaderPath)
	assert.Equal(t, "Title > Sub", sections[2].HeaderPath)
	assert.Contains(t, sections[2].Text, "# not a header")
	assert.Contains(t, sections[2].Text, "more")
}

func TestSplitSections_SiblingResetsPath(t *testing.T) {
	sections := SplitSections("# A\n## B\ntext\n# C\n### D\ntext")

	require.Len(t, sections, 4)
	assert.Equal(t, "A > B", sections[1].HeaderPath)
	assert.Equal(t, "C", sections[2].HeaderPath)
	assert.Equal(t, "C > D", sections[3].HeaderPath)
}

func TestTokenSplitter_WindowsOverlap(t *testing.T) {
	// Given: 200 six-byte words and a 40-char window with 8 chars of overlap
	var words []string
	for i := 0; i < 200; i++ {
		words = append(words, fmt.Sprintf("w%04d", i))
	}
	s := TokenSplitter{ChunkTokens: 10, OverlapTokens: 2}

	// When
	chunks := s.Split(strings.Join(words, " "))

	// Then
	require.Greater(t, len(chunks), 1)
	seen := map[string]bool{}
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 40)
		for _, w := range strings.Fields(c) {
			seen[w] = true
		}
		if i > 0 {
			prev := strings.Fields(chunks[i-1])
			assert.Equal(t, prev[len(prev)-1], strings.Fields(c)[0], "chunk %d starts with the previous chunk's last word", i)
		}
	}
	assert.Len(t, seen, 200)
}

func TestTokenSplitter_HardCutsLongWord(t *testing.T) {
	s := TokenSplitter{ChunkTokens: 10, OverlapTokens: 2}

	chunks := s.Split(strings.Repeat("x", 100))

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 40)
	assert.Len(t, chunks[2], 20)
}

func TestTokenSplitter_ShortAndBlank(t *testing.T) {
	s := TokenSplitter{ChunkTokens: 512, OverlapTokens: 100}

	assert.Equal(t, []string{"hello world"}, s.Split("  hello world \n"))
	assert.Empty(t, s.Split(" \n\t "))
}

func TestPipeline_MinCharsBoundary(t *testing.T) {
	// Given
	p := NewPipeline(Options{})
	md := metadata.Minimal(filetype.SourceCode)

	// When
	short := p.Chunk(filetype.SourceCode, "/kb/a.py", strings.Repeat("a", 49), md)
	exact := p.Chunk(filetype.SourceCode, "/kb/a.py", "  "+strings.Repeat("a", 50)+"\n", md)

	// Then
	assert.Empty(t, short)
	require.Len(t, exact, 1)
	assert.Equal(t, strings.Repeat("a", 50), exact[0].Text)
}

func TestPipeline_ProseSectionsCarryMetadata(t *testing.T) {
	// Given
	p := NewPipeline(Options{})
	md := metadata.Minimal(filetype.Prose)
	md.Tags = []string{"#idea"}
	text := "# Momentum\n" + strings.Repeat("Momentum signals decay slowly. ", 3) +
		"\n## Risk\n" + strings.Repeat("Position sizing limits the drawdown. ", 3) +
		"\n## Tiny\nshort"

	// When
	chunks := p.Chunk(filetype.Prose, "/kb/notes/momentum.md", text, md)

	// Then
	require.Len(t, chunks, 2, "the tiny section is below the minimum length")
	assert.Equal(t, "Momentum", chunks[0].HeaderPath)
	assert.Equal(t, "Momentum > Risk", chunks[1].HeaderPath)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "momentum.md", c.Filename)
		assert.Equal(t, "/kb/notes/momentum.md", c.SourcePath)
		assert.Equal(t, []string{"#idea"}, c.Metadata.Tags)
		assert.Len(t, c.ID, 16)
	}
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
}

func TestPipeline_LongCodeIsWindowed(t *testing.T) {
	p := NewPipeline(Options{ChunkTokens: 64, OverlapTokens: 8})
	text := strings.Repeat("def handler(event):\n    return event\n\n", 60)

	chunks := p.Chunk(filetype.SourceCode, "/kb/h.py", text, metadata.Minimal(filetype.SourceCode))

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 64*CharsPerToken)
		assert.Equal(t, "", c.HeaderPath)
	}
}

func TestGenerateChunkID_Stable(t *testing.T) {
	a := generateChunkID("/kb/a.md", 0, "text")
	assert.Equal(t, a, generateChunkID("/kb/a.md", 0, "text"))
	assert.NotEqual(t, a, generateChunkID("/kb/a.md", 1, "text"))
	assert.NotEqual(t, a, generateChunkID("/kb/b.md", 0, "text"))
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{OverlapTokens: 600}.withDefaults()
	assert.Equal(t, DefaultChunkTokens, o.ChunkTokens)
	assert.Equal(t, DefaultOverlapTokens, o.OverlapTokens)
	assert.Equal(t, DefaultMinChars, o.MinChars)
}

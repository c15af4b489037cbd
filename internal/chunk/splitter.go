package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var pieceRE = regexp.MustCompile(`\s*\S+\s*`)

// TokenSplitter cuts text into windows of at most ChunkTokens estimated
// tokens, carrying up to OverlapTokens of trailing text into the next
// window. Cuts fall on whitespace unless a single word exceeds a window.
type TokenSplitter struct {
	ChunkTokens   int
	OverlapTokens int
}

// Split returns the trimmed, non-empty windows of text in order.
func (s TokenSplitter) Split(text string) []string {
	maxChars := s.ChunkTokens * CharsPerToken
	overlapChars := s.OverlapTokens * CharsPerToken
	if maxChars <= 0 {
		return nil
	}
	if estimateTokens(text) <= s.ChunkTokens && len(text) <= maxChars {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	var chunks []string
	emit := func(window []string) {
		if t := strings.TrimSpace(strings.Join(window, "")); t != "" {
			chunks = append(chunks, t)
		}
	}

	var window []string
	size := 0
	for _, p := range splitPieces(text, maxChars) {
		if size+len(p) > maxChars && len(window) > 0 {
			emit(window)

			// Keep a tail of whole pieces as overlap.
			start := len(window)
			tail := 0
			for start > 0 && tail+len(window[start-1]) <= overlapChars {
				start--
				tail += len(window[start])
			}
			window = append([]string(nil), window[start:]...)
			size = tail
			for len(window) > 0 && size+len(p) > maxChars {
				size -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		size += len(p)
	}
	if len(window) > 0 {
		emit(window)
	}
	return chunks
}

// splitPieces breaks text into word-plus-whitespace pieces, hard-cutting
// any piece longer than maxChars at rune boundaries.
func splitPieces(text string, maxChars int) []string {
	var pieces []string
	for _, p := range pieceRE.FindAllString(text, -1) {
		for len(p) > maxChars {
			cut := maxChars
			for cut > 0 && !utf8.RuneStart(p[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxChars
			}
			pieces = append(pieces, p[:cut])
			p = p[cut:]
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

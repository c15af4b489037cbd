package metadata

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

// Front-matter keys with dedicated fields. Matching is case-insensitive.
var proseKnownKeys = []string{"tags", "created", "author", "type", "strategy", "sharpe", "cagr", "drawdown"}

// ProseParser handles Markdown files with optional YAML front-matter.
type ProseParser struct{}

// Kind implements Parser.
func (ProseParser) Kind() filetype.Kind { return filetype.Prose }

// ExtractMetadata implements Parser.
func (p ProseParser) ExtractMetadata(_ context.Context, path string) DocumentMetadata {
	data, err := os.ReadFile(path)
	if err != nil {
		return Minimal(filetype.Prose)
	}
	fm, body := SplitFrontMatter(string(data))
	return p.build(fm, body)
}

// ExtractText implements Parser. The whole file is indexed, front-matter
// included.
func (ProseParser) ExtractText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (ProseParser) build(fm map[string]any, body string) DocumentMetadata {
	md := Minimal(filetype.Prose)

	md.Tags = MergeTags(NormalizeTags(tagList(lookup(fm, "tags"))), ExtractInlineTags(body))
	md.Created = scalarString(lookup(fm, "created"))
	md.Author = scalarString(lookup(fm, "author"))
	md.TypeField = scalarString(lookup(fm, "type"))
	md.Strategy = scalarString(lookup(fm, "strategy"))
	md.Sharpe = parseFloatSafe(lookup(fm, "sharpe"))
	md.CAGR = parseFloatSafe(lookup(fm, "cagr"))
	md.Drawdown = parseFloatSafe(lookup(fm, "drawdown"))

	for key, value := range fm {
		if !isKnownKey(key) {
			md.Custom[key] = value
		}
	}
	return md
}

// SplitFrontMatter separates a leading "---" delimited YAML block from the
// body. Content without a well-formed block is returned whole with an
// empty map, so a broken header never hides the document.
func SplitFrontMatter(content string) (map[string]any, string) {
	content = strings.TrimPrefix(content, "\ufeff")
	normalized := strings.ReplaceAll(content, "\r\n", "\n")

	if !strings.HasPrefix(normalized, "---\n") {
		return map[string]any{}, normalized
	}
	rest := normalized[len("---\n"):]

	var header, body string
	found := false
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		if trimmed := strings.TrimRight(line, "\n"); trimmed == "---" || trimmed == "..." {
			header = rest[:offset]
			body = rest[offset+len(line):]
			found = true
			break
		}
		offset += len(line)
	}
	if !found {
		return map[string]any{}, normalized
	}

	fm := map[string]any{}
	if strings.TrimSpace(header) != "" {
		if err := yaml.Unmarshal([]byte(header), &fm); err != nil || fm == nil {
			return map[string]any{}, normalized
		}
	}
	return fm, strings.TrimLeft(body, "\n")
}

// lookup returns the first non-empty value whose key equals name
// case-insensitively. Keys are visited in sorted order so "Type" wins
// over "type" deterministically.
func lookup(fm map[string]any, name string) any {
	keys := make([]string, 0, len(fm))
	for k := range fm {
		if strings.EqualFold(k, name) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := fm[k]; v != nil && v != "" {
			return v
		}
	}
	return nil
}

func isKnownKey(key string) bool {
	for _, k := range proseKnownKeys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// tagList accepts a YAML list or a comma-separated string.
func tagList(v any) []string {
	switch x := v.(type) {
	case string:
		return strings.Split(x, ",")
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if item != nil {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return nil
	}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return fmt.Sprint(x)
	}
}

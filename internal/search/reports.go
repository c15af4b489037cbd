package search

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/Aman-CERP/amankb/internal/store"
)

// fieldTypes lists the filterable scalar fields reported by
// MetadataFields.
var fieldTypes = []struct {
	name string
	typ  string
}{
	{store.FieldType, "string"},
	{store.FieldStrategy, "string"},
	{store.FieldSharpe, "float"},
	{store.FieldCAGR, "float"},
	{store.FieldDrawdown, "float"},
}

// AllTags counts the chunks carrying each tag in root, from a sample of
// up to TagSampleSize chunks. Sorted by count, then tag.
func (e *Engine) AllTags(ctx context.Context, root string) ([]TagCount, error) {
	root, err := e.checkRoot(root)
	if err != nil {
		return nil, err
	}
	counts, err := e.tagCounts(ctx, root)
	if err != nil {
		return nil, err
	}
	return sortTags(counts), nil
}

func (e *Engine) tagCounts(ctx context.Context, root string) (map[string]int, error) {
	vs, name, err := e.collection(ctx, root)
	if err != nil {
		return nil, err
	}
	recs, err := vs.Query(ctx, name, nil, []string{store.FieldTags}, TagSampleSize)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, rec := range recs {
		var tags []string
		if err := json.Unmarshal([]byte(rec.String(store.FieldTags)), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			counts[t]++
		}
	}
	return counts, nil
}

func sortTags(counts map[string]int) []TagCount {
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// MetadataFields describes the filterable fields of root with up to five
// distinct example values each, from a sample of FieldSampleSize chunks.
func (e *Engine) MetadataFields(ctx context.Context, root string) (map[string]FieldInfo, error) {
	root, err := e.checkRoot(root)
	if err != nil {
		return nil, err
	}
	vs, name, err := e.collection(ctx, root)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(fieldTypes))
	for i, f := range fieldTypes {
		names[i] = f.name
	}
	recs, err := vs.Query(ctx, name, nil, names, FieldSampleSize)
	if err != nil {
		return nil, err
	}

	out := make(map[string]FieldInfo, len(fieldTypes))
	for _, f := range fieldTypes {
		info := FieldInfo{Type: f.typ, Examples: []string{}}
		seen := make(map[string]bool)
		for _, rec := range recs {
			if len(info.Examples) == maxExamples {
				break
			}
			v, ok := exampleValue(rec[f.name])
			if !ok || seen[v] {
				continue
			}
			seen[v] = true
			info.Examples = append(info.Examples, v)
		}
		out[f.name] = info
	}
	return out, nil
}

func exampleValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}

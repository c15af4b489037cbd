package index

import (
	"bytes"
	"encoding/json"

	"github.com/Aman-CERP/amankb/internal/chunk"
	"github.com/Aman-CERP/amankb/internal/store"
)

// buildEntity flattens the filterable metadata of c into columns and
// keeps the full record as metadata_json.
func buildEntity(c chunk.Chunk, vector []float32) store.Entity {
	md := c.Metadata
	return store.Entity{
		ID:           c.ID,
		Text:         c.Text,
		Filename:     c.Filename,
		Path:         c.SourcePath,
		Vector:       vector,
		TagsStr:      tagsJSON(md.Tags),
		TypeField:    md.TypeField,
		Strategy:     md.Strategy,
		Sharpe:       md.Sharpe,
		CAGR:         md.CAGR,
		Drawdown:     md.Drawdown,
		MetadataJSON: md.JSON(),
	}
}

// tagsJSON encodes tags as a JSON list without HTML escaping, so the
// stored text contains each tag verbatim between quotes.
func tagsJSON(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tags); err != nil {
		return "[]"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

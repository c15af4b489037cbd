package mcp

import (
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/registry"
	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/tracking"
)

// Tool names.
const (
	ToolIndex          = "knowledge_index"
	ToolSearch         = "knowledge_search"
	ToolListIndexes    = "knowledge_list_indexes"
	ToolRefresh        = "knowledge_refresh_index"
	ToolTags           = "knowledge_get_tags"
	ToolMetadataFields = "knowledge_get_metadata_fields"
	ToolDrop           = "knowledge_drop_index"
	ToolKnowledges     = "knowledge_list_knowledges"
)

// IndexInput defines the input schema for knowledge_index.
type IndexInput struct {
	Directory    string `json:"directory" jsonschema:"knowledge base name or directory path to index"`
	Recursive    *bool  `json:"recursive,omitempty" jsonschema:"index subdirectories, default true"`
	ForceReindex bool   `json:"force_reindex,omitempty" jsonschema:"drop the index and rebuild it from scratch"`
}

// IndexOutput holds one result per indexed directory.
type IndexOutput struct {
	Results []*index.Result `json:"results"`
}

// SearchInput defines the input schema for knowledge_search.
type SearchInput struct {
	Query           string         `json:"query" jsonschema:"the search query text"`
	Directory       string         `json:"directory,omitempty" jsonschema:"knowledge base name or directory path; empty searches every registered knowledge base"`
	Tags            []string       `json:"tags,omitempty" jsonschema:"required tags such as #backtest, all must match"`
	MetadataFilters map[string]any `json:"metadata_filters,omitempty" jsonschema:"field filters such as {\"strategy\": \"momentum\", \"sharpe\": \"> 1.5\"} or {\"sharpe > 1.5\": null}"`
	Limit           int            `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Threshold       *float64       `json:"threshold,omitempty" jsonschema:"minimum similarity score between 0 and 1, default 0.5"`
}

// SearchOutput defines the output schema for knowledge_search.
type SearchOutput struct {
	Status  string          `json:"status"`
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Total   int             `json:"total"`
}

// NoInput is the input schema of tools without parameters.
type NoInput struct{}

// ListIndexesOutput defines the output schema for knowledge_list_indexes.
type ListIndexesOutput struct {
	Indexes []tracking.Summary `json:"indexes"`
	Total   int                `json:"total"`
}

// RefreshInput defines the input schema for knowledge_refresh_index.
type RefreshInput struct {
	Directory string `json:"directory,omitempty" jsonschema:"knowledge base name or directory path; empty refreshes every indexed directory"`
	Recursive *bool  `json:"recursive,omitempty" jsonschema:"check subdirectories, default true"`
}

// DirectoryInput is the input schema of the read-only reports.
type DirectoryInput struct {
	Directory string `json:"directory,omitempty" jsonschema:"knowledge base name or directory path; empty aggregates every registered knowledge base"`
}

// TagsOutput defines the output schema for knowledge_get_tags.
type TagsOutput struct {
	Status string            `json:"status"`
	Tags   []search.TagCount `json:"tags"`
	Total  int               `json:"total"`
}

// FieldsOutput defines the output schema for knowledge_get_metadata_fields.
type FieldsOutput struct {
	Status string                      `json:"status"`
	Fields map[string]search.FieldInfo `json:"fields"`
}

// DropInput defines the input schema for knowledge_drop_index.
type DropInput struct {
	Directory string `json:"directory" jsonschema:"knowledge base name or directory path whose index is removed"`
}

// DropOutput holds one result per dropped directory.
type DropOutput struct {
	Results []*index.DropResult `json:"results"`
}

// KnowledgesOutput defines the output schema for knowledge_list_knowledges.
type KnowledgesOutput struct {
	Knowledges []registry.Status `json:"knowledges"`
	Total      int               `json:"total"`
}

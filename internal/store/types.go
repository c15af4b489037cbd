// Package store provides the vector store used to persist embedded chunks:
// named collections of entities with flattened filter fields, searched by
// cosine distance. SQLiteStore keeps rows in SQLite and answers
// unfiltered queries from an in-memory HNSW graph.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/amankb/internal/filter"
)

// Entity fields that can be requested from Query and Search.
const (
	FieldID           = "id"
	FieldText         = "text"
	FieldFilename     = "filename"
	FieldPath         = "path"
	FieldTags         = "tags_str"
	FieldType         = "type_field"
	FieldStrategy     = "strategy"
	FieldSharpe       = "sharpe"
	FieldCAGR         = "cagr"
	FieldDrawdown     = "drawdown"
	FieldMetadataJSON = "metadata_json"
)

// AllFields lists every scalar entity field in schema order.
var AllFields = []string{
	FieldID, FieldText, FieldFilename, FieldPath, FieldTags, FieldType,
	FieldStrategy, FieldSharpe, FieldCAGR, FieldDrawdown, FieldMetadataJSON,
}

// Entity is one embedded chunk as persisted.
type Entity struct {
	ID           string
	Text         string
	Filename     string
	Path         string
	Vector       []float32
	TagsStr      string // JSON list of tags
	TypeField    string
	Strategy     string
	Sharpe       *float64
	CAGR         *float64
	Drawdown     *float64
	MetadataJSON string
}

// Record holds the requested fields of one entity. Absent numeric fields
// are nil.
type Record map[string]any

// String returns the string value of field, or "".
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Hit is one search result.
type Hit struct {
	ID       string
	Distance float32 // cosine distance, 0 = identical
	Fields   Record
}

// CollectionInfo summarizes a collection.
type CollectionInfo struct {
	Name       string
	Dimensions int
	Count      int
}

// VectorStore is a collection-oriented vector database.
type VectorStore interface {
	HasCollection(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dim int) error
	DropCollection(ctx context.Context, name string) error
	Collections(ctx context.Context) ([]CollectionInfo, error)

	// Insert upserts entities by ID.
	Insert(ctx context.Context, name string, entities []Entity) error

	// Delete removes entities matching expr and returns how many were
	// removed. A nil expr is rejected.
	Delete(ctx context.Context, name string, expr filter.Expr) (int, error)

	// Query returns up to limit records matching expr (nil = all).
	Query(ctx context.Context, name string, expr filter.Expr, fields []string, limit int) ([]Record, error)

	// Search returns, for each query vector, up to limit nearest entities
	// matching expr ordered by ascending distance.
	Search(ctx context.Context, name string, vectors [][]float32, limit int, fields []string, expr filter.Expr) ([][]Hit, error)

	Close() error
}

// ErrCollectionNotFound is returned for operations on a missing collection.
var ErrCollectionNotFound = errors.New("collection not found")

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'amankb index --force')", e.Expected, e.Got)
}

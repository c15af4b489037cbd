package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/amankb/internal/filter"
)

// DefaultExactSearchLimit is the collection size up to which unfiltered
// searches scan every vector instead of using the HNSW graph.
const DefaultExactSearchLimit = 2000

var collectionNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var numericFields = map[string]bool{
	FieldSharpe:   true,
	FieldCAGR:     true,
	FieldDrawdown: true,
}

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	dim        INTEGER NOT NULL,
	version    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS entities (
	collection    TEXT NOT NULL,
	id            TEXT NOT NULL,
	text          TEXT NOT NULL,
	filename      TEXT NOT NULL,
	path          TEXT NOT NULL,
	tags_str      TEXT NOT NULL DEFAULT '[]',
	type_field    TEXT NOT NULL DEFAULT '',
	strategy      TEXT NOT NULL DEFAULT '',
	sharpe        REAL,
	cagr          REAL,
	drawdown      REAL,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	vector        BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_entities_path ON entities(collection, path);
`

// SQLiteStore implements VectorStore on SQLite. Entity rows and vectors
// live in one database file shared by every collection; HNSW graphs are
// built lazily per collection and rebuilt when the collection's version
// changes, including writes from other processes.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	graphs map[string]*graphIndex
	closed bool

	// ExactSearchLimit overrides DefaultExactSearchLimit when > 0.
	ExactSearchLimit int
}

// Verify interface implementation at compile time
var _ VectorStore = (*SQLiteStore)(nil)

// validateSQLiteIntegrity checks an existing database before opening it.
// Returns nil if valid or absent.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens or creates the store at path. An empty path
// creates an in-memory store for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("vector_store_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("vector store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("vector_store_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: one writer, and :memory: databases are
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		graphs: make(map[string]*graphIndex),
	}, nil
}

// Path returns the database file path ("" for in-memory stores).
func (s *SQLiteStore) Path() string { return s.path }

func checkName(name string) error {
	if !collectionNameRE.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

// collection returns the dimension and version of name.
func (s *SQLiteStore) collection(ctx context.Context, q querier, name string) (dim int, version int64, err error) {
	if err := checkName(name); err != nil {
		return 0, 0, err
	}
	err = q.QueryRowContext(ctx, `SELECT dim, version FROM collections WHERE name = ?`, name).Scan(&dim, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	return dim, version, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// HasCollection reports whether name exists.
func (s *SQLiteStore) HasCollection(ctx context.Context, name string) (bool, error) {
	_, _, err := s.collection(ctx, s.db, name)
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CreateCollection creates name with vectors of dim dimensions. Creating
// an existing collection with the same dimension is a no-op.
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string, dim int) error {
	if err := checkName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	existing, _, err := s.collection(ctx, s.db, name)
	switch {
	case err == nil:
		if existing != dim {
			return ErrDimensionMismatch{Expected: existing, Got: dim}
		}
		return nil
	case !errors.Is(err, ErrCollectionNotFound):
		return err
	}

	if _, err := s.db.ExecContext(ctx, `INSERT INTO collections (name, dim) VALUES (?, ?)`, name, dim); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	slog.Debug("collection_created", slog.String("collection", name), slog.Int("dim", dim))
	return nil
}

// DropCollection removes name and all its entities. Dropping a missing
// collection is a no-op.
func (s *SQLiteStore) DropCollection(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("failed to delete entities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.mu.Lock()
	delete(s.graphs, name)
	s.mu.Unlock()
	return nil
}

// Collections lists every collection with its entity count.
func (s *SQLiteStore) Collections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, c.dim, COUNT(e.id)
		FROM collections c LEFT JOIN entities e ON e.collection = c.name
		GROUP BY c.name, c.dim
		ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var out []CollectionInfo
	for rows.Next() {
		var info CollectionInfo
		if err := rows.Scan(&info.Name, &info.Dimensions, &info.Count); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Insert upserts entities into name in one transaction.
func (s *SQLiteStore) Insert(ctx context.Context, name string, entities []Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	dim, _, err := s.collection(ctx, tx, name)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entities
			(collection, id, text, filename, path, tags_str, type_field, strategy,
			 sharpe, cagr, drawdown, metadata_json, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		if len(e.Vector) != dim {
			return ErrDimensionMismatch{Expected: dim, Got: len(e.Vector)}
		}
		tags := e.TagsStr
		if tags == "" {
			tags = "[]"
		}
		meta := e.MetadataJSON
		if meta == "" {
			meta = "{}"
		}
		if _, err := stmt.ExecContext(ctx,
			name, e.ID, e.Text, e.Filename, e.Path, tags, e.TypeField, e.Strategy,
			nullFloat(e.Sharpe), nullFloat(e.CAGR), nullFloat(e.Drawdown), meta,
			encodeVector(normalize(e.Vector)),
		); err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", e.ID, err)
		}
	}

	if err := bumpVersion(ctx, tx, name); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes entities of name matching expr.
func (s *SQLiteStore) Delete(ctx context.Context, name string, expr filter.Expr) (int, error) {
	if expr == nil {
		return 0, fmt.Errorf("delete requires a filter")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := s.collection(ctx, tx, name); err != nil {
		return 0, err
	}

	clause, args := expr.SQL()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM entities WHERE collection = ? AND (`+clause+`)`,
		append([]any{name}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := bumpVersion(ctx, tx, name); err != nil {
			return 0, err
		}
	}
	return int(n), tx.Commit()
}

func bumpVersion(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE collections SET version = version + 1 WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to update collection version: %w", err)
	}
	return nil
}

// Query returns records of name matching expr in insertion order.
func (s *SQLiteStore) Query(ctx context.Context, name string, expr filter.Expr, fields []string, limit int) ([]Record, error) {
	if _, _, err := s.collection(ctx, s.db, name); err != nil {
		return nil, err
	}
	cols, err := columns(fields)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM entities WHERE collection = ?`
	args := []any{name}
	if expr != nil {
		clause, eargs := expr.SQL()
		query += ` AND (` + clause + `)`
		args = append(args, eargs...)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY rowid LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search finds the nearest entities for each query vector. Filtered and
// small collections are searched exactly; larger unfiltered collections
// use the HNSW graph.
func (s *SQLiteStore) Search(ctx context.Context, name string, vectors [][]float32, limit int, fields []string, expr filter.Expr) ([][]Hit, error) {
	dim, version, err := s.collection(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, ErrDimensionMismatch{Expected: dim, Got: len(v)}
		}
	}
	if limit <= 0 {
		return make([][]Hit, len(vectors)), nil
	}

	var graph *graphIndex
	var candidates []candidate
	if expr == nil && s.count(ctx, name) > s.exactLimit() {
		graph, err = s.graphFor(ctx, name, version)
	} else {
		candidates, err = s.loadVectors(ctx, name, expr)
	}
	if err != nil {
		return nil, err
	}

	results := make([][]Hit, len(vectors))
	for i, v := range vectors {
		q := normalize(v)
		if graph != nil {
			results[i] = graph.search(q, limit)
		} else {
			results[i] = exactSearch(q, candidates, limit)
		}
		if err := s.attachFields(ctx, name, results[i], fields); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *SQLiteStore) exactLimit() int {
	if s.ExactSearchLimit > 0 {
		return s.ExactSearchLimit
	}
	return DefaultExactSearchLimit
}

func (s *SQLiteStore) count(ctx context.Context, name string) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE collection = ?`, name).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (s *SQLiteStore) loadVectors(ctx context.Context, name string, expr filter.Expr) ([]candidate, error) {
	query := `SELECT id, vector FROM entities WHERE collection = ?`
	args := []any{name}
	if expr != nil {
		clause, eargs := expr.SQL()
		query += ` AND (` + clause + `)`
		args = append(args, eargs...)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", id, err)
		}
		out = append(out, candidate{id: id, vector: vec})
	}
	return out, rows.Err()
}

// graphFor returns the cached graph for name, rebuilding it when the
// stored version moved on.
func (s *SQLiteStore) graphFor(ctx context.Context, name string, version int64) (*graphIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.graphs[name]; ok && g.version == version {
		return g, nil
	}

	candidates, err := s.loadVectors(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(candidates))
	vecs := make([][]float32, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
		vecs[i] = c.vector
	}
	g := &graphIndex{graph: newGraph(ids, vecs), version: version}
	s.graphs[name] = g
	slog.Debug("hnsw_graph_built", slog.String("collection", name), slog.Int("nodes", len(ids)))
	return g, nil
}

// attachFields loads the requested fields for hits in place.
func (s *SQLiteStore) attachFields(ctx context.Context, name string, hits []Hit, fields []string) error {
	if len(hits) == 0 || len(fields) == 0 {
		return nil
	}
	cols, err := columns(fields)
	if err != nil {
		return err
	}
	selectCols := append([]string{FieldID}, cols...)

	placeholders := make([]string, len(hits))
	args := []any{name}
	for i, h := range hits {
		placeholders[i] = "?"
		args = append(args, h.ID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(selectCols, ", ")+` FROM entities WHERE collection = ? AND id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to load hit fields: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Record, len(hits))
	for rows.Next() {
		rec, err := scanRecord(rows, selectCols)
		if err != nil {
			return err
		}
		id := rec.String(FieldID)
		if !containsString(fields, FieldID) {
			delete(rec, FieldID)
		}
		byID[id] = rec
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range hits {
		hits[i].Fields = byID[hits[i].ID]
	}
	return nil
}

// columns validates requested fields. Empty means every field.
func columns(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return AllFields, nil
	}
	for _, f := range fields {
		if !containsString(AllFields, f) {
			return nil, fmt.Errorf("unknown field %q", f)
		}
	}
	return fields, nil
}

func scanRecord(rows *sql.Rows, cols []string) (Record, error) {
	dest := make([]any, len(cols))
	for i, c := range cols {
		if numericFields[c] {
			dest[i] = new(sql.NullFloat64)
		} else {
			dest[i] = new(string)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}

	rec := make(Record, len(cols))
	for i, c := range cols {
		switch v := dest[i].(type) {
		case *sql.NullFloat64:
			if v.Valid {
				rec[c] = v.Float64
			} else {
				rec[c] = nil
			}
		case *string:
			rec[c] = *v
		}
	}
	return rec, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graphs = nil
	return s.db.Close()
}

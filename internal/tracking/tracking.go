// Package tracking persists per-root change-detection state: for every
// indexed file its content fingerprint and modification time.
package tracking

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/google/renameio"

	"github.com/Aman-CERP/amankb/internal/scanner"
)

// FileName is the tracking file inside each root's cache directory.
const FileName = "tracking.json"

// FileState is the change-detection entry for one file. It serializes as
// a two-element array: [fingerprint, mtime].
type FileState struct {
	Fingerprint string
	ModTime     float64 // Unix seconds
}

// MarshalJSON implements json.Marshaler.
func (f FileState) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Fingerprint, f.ModTime})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FileState) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("file state: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &f.Fingerprint); err != nil {
		return fmt.Errorf("file state fingerprint: %w", err)
	}
	if err := json.Unmarshal(raw[1], &f.ModTime); err != nil {
		return fmt.Errorf("file state mtime: %w", err)
	}
	return nil
}

// Record is the persisted tracking state of one knowledge root.
type Record struct {
	Root        string               `json:"root,omitempty"`
	LastChecked float64              `json:"last_checked"`
	Files       map[string]FileState `json:"files"`
}

// NewRecord returns an empty record with LastChecked = 0.
func NewRecord() *Record {
	return &Record{Files: make(map[string]FileState)}
}

// LastCheckedTime returns LastChecked as a time.
func (r *Record) LastCheckedTime() time.Time {
	sec := int64(r.LastChecked)
	nsec := int64((r.LastChecked - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Touch sets LastChecked to t.
func (r *Record) Touch(t time.Time) {
	r.LastChecked = unixSeconds(t)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Store reads and writes tracking records under a cache directory, one
// subdirectory per root named by Slug.
type Store struct {
	cacheDir    string
	maxFileSize int64
}

// NewStore creates a store rooted at cacheDir. maxFileSize is passed to
// the scanner when detecting changes (0 = scanner default).
func NewStore(cacheDir string, maxFileSize int64) *Store {
	return &Store{cacheDir: cacheDir, maxFileSize: maxFileSize}
}

// CacheDir returns the top-level cache directory.
func (s *Store) CacheDir() string { return s.cacheDir }

// Dir returns the cache directory for root.
func (s *Store) Dir(root string) string {
	return filepath.Join(s.cacheDir, Slug(root))
}

// Path returns the tracking file path for root.
func (s *Store) Path(root string) string {
	return filepath.Join(s.Dir(root), FileName)
}

// Load reads root's record. A missing or corrupt file yields an empty
// record; corruption is logged and otherwise ignored.
func (s *Store) Load(root string) *Record {
	return readRecord(s.Path(root))
}

func readRecord(path string) *Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("tracking_read_failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return NewRecord()
	}

	rec := NewRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		slog.Warn("tracking_corrupt_reset", slog.String("path", path), slog.String("error", err.Error()))
		return NewRecord()
	}
	if rec.Files == nil {
		rec.Files = make(map[string]FileState)
	}
	return rec
}

// Save writes rec for root by writing a temp file and renaming it over
// the old one.
func (s *Store) Save(root string, rec *Record) error {
	dir := s.Dir(root)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if rec.Files == nil {
		rec.Files = make(map[string]FileState)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracking record: %w", err)
	}
	if err := renameio.WriteFile(s.Path(root), data, 0o644); err != nil {
		return fmt.Errorf("failed to write tracking record: %w", err)
	}
	return nil
}

// Remove deletes root's cache directory and everything in it.
func (s *Store) Remove(root string) error {
	return os.RemoveAll(s.Dir(root))
}

// Clear deletes everything in root's cache directory except the named
// entries. A missing directory is not an error.
func (s *Store) Clear(root string, keep ...string) error {
	dir := s.Dir(root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if slices.Contains(keep, e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether root has a tracking file.
func (s *Store) Exists(root string) bool {
	_, err := os.Stat(s.Path(root))
	return err == nil
}

// Fingerprint returns the hex MD5 of the file's bytes.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Stat computes the current FileState of path.
func Stat(path string) (FileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileState{}, err
	}
	fp, err := Fingerprint(path)
	if err != nil {
		return FileState{}, err
	}
	return FileState{Fingerprint: fp, ModTime: unixSeconds(info.ModTime())}, nil
}

// ChangedFiles scans root and returns files that are untracked or whose
// fingerprint or mtime differ from the stored record. Files that vanish
// while being hashed are skipped. Tracked files missing from disk are
// not reported here; see MissingFiles.
func (s *Store) ChangedFiles(ctx context.Context, root string, recursive bool) ([]scanner.FileInfo, error) {
	files, err := scanner.Scan(ctx, scanner.Options{Root: root, Recursive: recursive, MaxFileSize: s.maxFileSize})
	if err != nil {
		return nil, err
	}
	return changed(s.Load(root), files), nil
}

func changed(rec *Record, files []scanner.FileInfo) []scanner.FileInfo {
	var out []scanner.FileInfo
	for _, f := range files {
		prev, ok := rec.Files[f.Path]
		if !ok || prev.ModTime != unixSeconds(f.ModTime) {
			out = append(out, f)
			continue
		}
		fp, err := Fingerprint(f.Path)
		if err != nil {
			slog.Debug("tracking_hash_skipped", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if fp != prev.Fingerprint {
			out = append(out, f)
		}
	}
	return out
}

// MissingFiles returns tracked paths that no longer exist on disk,
// sorted. It is informational only: nothing is purged.
func (s *Store) MissingFiles(root string) []string {
	rec := s.Load(root)
	var missing []string
	for path := range rec.Files {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, path)
		}
	}
	sort.Strings(missing)
	return missing
}

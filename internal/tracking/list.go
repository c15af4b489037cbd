package tracking

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Summary describes one indexed root found in the cache directory.
type Summary struct {
	Root        string    `json:"path"`
	Slug        string    `json:"slug"`
	Collection  string    `json:"collection"`
	FileCount   int       `json:"file_count"`
	LastChecked time.Time `json:"last_checked"`
}

// List returns a summary for every cache subdirectory holding a tracking
// file, sorted by root.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(s.cacheDir, e.Name(), FileName)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		rec := readRecord(path)
		root := rec.Root
		if root == "" {
			root = commonParent(rec.Files)
		}
		out = append(out, Summary{
			Root:        root,
			Slug:        e.Name(),
			Collection:  collectionForSlug(e.Name()),
			FileCount:   len(rec.Files),
			LastChecked: rec.LastCheckedTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out, nil
}

// commonParent returns the deepest directory containing every file.
func commonParent(files map[string]FileState) string {
	var prefix []string
	first := true
	for path := range files {
		parts := strings.Split(filepath.Dir(path), string(filepath.Separator))
		if first {
			prefix = parts
			first = false
			continue
		}
		n := 0
		for n < len(prefix) && n < len(parts) && prefix[n] == parts[n] {
			n++
		}
		prefix = prefix[:n]
	}
	if len(prefix) == 0 {
		return ""
	}
	joined := strings.Join(prefix, string(filepath.Separator))
	if joined == "" {
		return string(filepath.Separator)
	}
	return joined
}

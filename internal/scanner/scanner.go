package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Aman-CERP/amankb/internal/filetype"
)

// Scan walks opts.Root and returns every supported file, sorted by path.
// Entries that cannot be read are skipped; an unreadable root is an
// error wrapping the underlying fs error (fs.ErrPermission,
// fs.ErrNotExist).
func Scan(ctx context.Context, opts Options) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}
	// Surface permission problems on the root itself instead of
	// silently returning an empty scan.
	if _, err := os.ReadDir(absRoot); err != nil {
		return nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			slog.Debug("scan_entry_skipped", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		if path == absRoot {
			return nil
		}

		if d.IsDir() {
			if isHidden(d.Name()) || !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if isHidden(d.Name()) || !d.Type().IsRegular() {
			return nil
		}

		kind := filetype.FromPath(path)
		if kind == filetype.Unknown {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if kind != filetype.Prose && fi.Size() > maxFileSize {
			slog.Debug("scan_file_too_large",
				slog.String("path", path),
				slog.Int64("size", fi.Size()),
				slog.Int64("max", maxFileSize))
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:    path,
			RelPath: rel,
			Kind:    kind,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

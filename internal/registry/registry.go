// Package registry reads the knowledge-base registry: a YAML file that
// names knowledge bases and maps each to one or more directories.
//
//	knowledges:
//	  research:
//	    path: ~/research
//	    description: Strategy research notes
//	    tags: [quant]
//	  code:
//	    paths: [~/src/alpha, ~/src/beta]
package registry

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amankb/internal/config"
	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

// Knowledge is one registered knowledge base.
type Knowledge struct {
	Name        string   `json:"name"`
	Paths       []string `json:"paths"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Root is one directory of a knowledge base.
type Root struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type entry struct {
	Path        string   `yaml:"path"`
	Paths       []string `yaml:"paths"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

type document struct {
	Knowledges map[string]yaml.Node `yaml:"knowledges"`
}

// Registry reads a registry file. The file is re-read on every call so
// edits apply without a restart.
type Registry struct {
	path string
}

// New creates a registry backed by path.
func New(path string) *Registry {
	return &Registry{path: config.ExpandHome(path)}
}

// Path returns the registry file path.
func (r *Registry) Path() string { return r.path }

// Load returns every knowledge base with at least one path. A missing
// file is an empty registry. Entries that are not mappings are skipped.
func (r *Registry) Load() (map[string]Knowledge, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Knowledge{}, nil
		}
		return nil, kberrors.New(kberrors.ErrCodeRegistry, "failed to read registry", err).
			WithDetail("path", r.path)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, kberrors.New(kberrors.ErrCodeRegistry, "invalid registry YAML", err).
			WithDetail("path", r.path)
	}

	out := make(map[string]Knowledge, len(doc.Knowledges))
	for name, node := range doc.Knowledges {
		if node.Kind != yaml.MappingNode {
			slog.Warn("registry_entry_skipped", slog.String("name", name))
			continue
		}
		var e entry
		if err := node.Decode(&e); err != nil {
			slog.Warn("registry_entry_invalid", slog.String("name", name), slog.String("error", err.Error()))
			continue
		}

		raw := e.Paths
		if len(raw) == 0 && e.Path != "" {
			raw = []string{e.Path}
		}
		var paths []string
		for _, p := range raw {
			if strings.TrimSpace(p) == "" {
				continue
			}
			paths = append(paths, absPath(p))
		}
		if len(paths) == 0 {
			continue
		}
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		out[name] = Knowledge{Name: name, Paths: paths, Description: e.Description, Tags: tags}
	}
	return out, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() ([]string, error) {
	kbs, err := r.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(kbs))
	for name := range kbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Roots returns every registered directory, ordered by knowledge base
// name. A directory listed under several names appears once, under the
// first name.
func (r *Registry) Roots() ([]Root, error) {
	kbs, err := r.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(kbs))
	for name := range kbs {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var out []Root
	for _, name := range names {
		for _, p := range kbs[name].Paths {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, Root{Name: name, Path: p})
		}
	}
	return out, nil
}

// Resolve turns a knowledge base name or a directory into roots.
// Anything containing a path separator or starting with "~" is a path;
// otherwise a registered name wins, and an unknown name is treated as a
// path relative to the working directory.
func (r *Registry) Resolve(nameOrPath string) ([]string, error) {
	if nameOrPath == "" {
		return nil, kberrors.New(kberrors.ErrCodeInvalidInput, "knowledge base name or path is required", nil)
	}
	if looksLikePath(nameOrPath) {
		return []string{absPath(nameOrPath)}, nil
	}

	kbs, err := r.Load()
	if err != nil {
		return nil, err
	}
	if kb, ok := kbs[nameOrPath]; ok {
		return kb.Paths, nil
	}
	return []string{absPath(nameOrPath)}, nil
}

// NameFor returns the knowledge base owning root, or "".
func (r *Registry) NameFor(root string) string {
	roots, err := r.Roots()
	if err != nil {
		return ""
	}
	for _, rt := range roots {
		if rt.Path == root {
			return rt.Name
		}
	}
	return ""
}

// PathStatus reports one registered directory.
type PathStatus struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	Indexed bool   `json:"indexed"`
}

// Status describes a knowledge base and the state of its directories.
type Status struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Tags        []string     `json:"tags"`
	Paths       []PathStatus `json:"paths"`
}

// Statuses lists every knowledge base, sorted by name. indexed reports
// whether an existing directory has been indexed.
func (r *Registry) Statuses(indexed func(root string) bool) ([]Status, error) {
	kbs, err := r.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(kbs))
	for name := range kbs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Status, 0, len(names))
	for _, name := range names {
		kb := kbs[name]
		st := Status{
			Name:        name,
			Description: kb.Description,
			Tags:        kb.Tags,
			Paths:       make([]PathStatus, 0, len(kb.Paths)),
		}
		if st.Tags == nil {
			st.Tags = []string{}
		}
		for _, p := range kb.Paths {
			ps := PathStatus{Path: p}
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				ps.Exists = true
				ps.Indexed = indexed != nil && indexed(p)
			}
			st.Paths = append(st.Paths, ps)
		}
		out = append(out, st)
	}
	return out, nil
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "~") || strings.ContainsRune(s, filepath.Separator) || strings.Contains(s, "/")
}

func absPath(p string) string {
	return config.ResolvePath(p)
}

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

func writeRegistry(t *testing.T, content string) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return New(path)
}

func TestLoad_PathAndPaths(t *testing.T) {
	// Given
	a, b, c := t.TempDir(), t.TempDir(), t.TempDir()
	r := writeRegistry(t, `
knowledges:
  research:
    path: `+a+`
    description: Strategy notes
    tags: [quant, notes]
  code:
    paths:
      - `+b+`
      - `+c+`
  broken: just a string
  empty:
    description: no paths here
`)

	// When
	kbs, err := r.Load()

	// Then
	require.NoError(t, err)
	require.Len(t, kbs, 2)
	assert.Equal(t, Knowledge{Name: "research", Paths: []string{a}, Description: "Strategy notes", Tags: []string{"quant", "notes"}}, kbs["research"])
	assert.Equal(t, []string{b, c}, kbs["code"].Paths)
	assert.Equal(t, []string{}, kbs["code"].Tags)
}

func TestLoad_MissingAndInvalid(t *testing.T) {
	kbs, err := New(filepath.Join(t.TempDir(), "none.yaml")).Load()
	require.NoError(t, err)
	assert.Empty(t, kbs)

	_, err = writeRegistry(t, "knowledges: [unclosed").Load()
	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeRegistry, kberrors.GetCode(err))
}

func TestRoots_DedupedInNameOrder(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	r := writeRegistry(t, `
knowledges:
  zeta:
    paths: [`+a+`, `+b+`]
  alpha:
    path: `+a+`
`)

	roots, err := r.Roots()

	require.NoError(t, err)
	assert.Equal(t, []Root{{Name: "alpha", Path: a}, {Name: "zeta", Path: b}}, roots)
	assert.Equal(t, "alpha", r.NameFor(a))
	assert.Equal(t, "", r.NameFor("/nowhere"))
}

func TestResolve(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	r := writeRegistry(t, `
knowledges:
  research:
    paths: [`+a+`, `+b+`]
`)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"registered name", "research", []string{a, b}},
		{"absolute path", a, []string{a}},
		{"home path", "~/kb-that-does-not-exist", []string{filepath.Join(home, "kb-that-does-not-exist")}},
		{"unknown name", "unregistered", []string{filepath.Join(wd, "unregistered")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = r.Resolve("")
	assert.Error(t, err)
}

func TestStatuses(t *testing.T) {
	a := t.TempDir()
	gone := filepath.Join(a, "gone")
	r := writeRegistry(t, `
knowledges:
  research:
    description: notes
    paths: [`+a+`, `+gone+`]
`)

	st, err := r.Statuses(func(root string) bool { return root == a })

	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.Equal(t, "notes", st[0].Description)
	assert.Equal(t, []PathStatus{
		{Path: a, Exists: true, Indexed: true},
		{Path: gone, Exists: false, Indexed: false},
	}, st[0].Paths)
}

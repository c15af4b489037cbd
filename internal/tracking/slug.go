package tracking

import (
	"path/filepath"
	"regexp"
	"strings"
)

var slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Slug derives a stable, filesystem-safe name from the last two
// components of root.
func Slug(root string) string {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(filepath.Clean(root)), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	slug := slugUnsafe.ReplaceAllString(strings.Join(parts, "-"), "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))
	if slug == "" {
		return "root"
	}
	return slug
}

// CollectionName returns the vector store collection that holds root.
func CollectionName(root string) string {
	return collectionForSlug(Slug(root))
}

func collectionForSlug(slug string) string {
	return "knowledge_" + strings.ReplaceAll(slug, "-", "_")
}

package metadata

import (
	"regexp"
	"sort"
	"strings"
)

var (
	fencedCodeRE  = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCodeRE  = regexp.MustCompile("`[^`]*`")
	styleBlockRE  = regexp.MustCompile(`(?i)<style[\s\S]*?</style>`)
	markupTagRE   = regexp.MustCompile(`<[^>]+>`)
	styleAttrRE   = regexp.MustCompile(`(?i)\bstyle\s*=\s*['"][^'"]*['"]`)
	hashtagRE     = regexp.MustCompile(`#[a-zA-Z][a-zA-Z0-9_-]*`)
	hexRE         = regexp.MustCompile(`^[a-fA-F0-9]+$`)
	headingMarkRE = regexp.MustCompile(`(?i)^h\d+$`)
)

// IsValidTag reports whether a "#rest" token is a real tag. Rejected:
// rest of two characters or fewer, hex color codes (3, 4, 6 or 8 hex
// digits) and heading markers like #h1.
func IsValidTag(tag string) bool {
	rest := strings.TrimPrefix(tag, "#")
	if len(rest) <= 2 {
		return false
	}
	if hexRE.MatchString(rest) {
		switch len(rest) {
		case 3, 4, 6, 8:
			return false
		}
	}
	return !headingMarkRE.MatchString(rest)
}

// ExtractInlineTags finds hashtags in markdown text, ignoring code,
// markup tags and style declarations. The result is deduplicated and
// sorted; case is preserved.
func ExtractInlineTags(text string) []string {
	text = fencedCodeRE.ReplaceAllString(text, "")
	text = inlineCodeRE.ReplaceAllString(text, "")
	text = styleBlockRE.ReplaceAllString(text, "")
	text = markupTagRE.ReplaceAllString(text, "")
	text = styleAttrRE.ReplaceAllString(text, "")

	var tags []string
	for _, tag := range hashtagRE.FindAllString(text, -1) {
		if IsValidTag(tag) {
			tags = append(tags, tag)
		}
	}
	return MergeTags(tags)
}

// NormalizeTags prefixes "#" where missing and drops invalid tags.
func NormalizeTags(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		if IsValidTag(tag) {
			out = append(out, tag)
		}
	}
	return out
}

// MergeTags returns the sorted union of the given tag lists.
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	merged := []string{}
	for _, list := range lists {
		for _, tag := range list {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			merged = append(merged, tag)
		}
	}
	sort.Strings(merged)
	return merged
}

package chunk

import (
	"regexp"
	"strings"
)

// Matches ATX headers: # Title, ## Title, etc.
var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

// Section is a markdown header and the content up to the next header.
type Section struct {
	Level      int
	Title      string
	HeaderPath string
	Text       string
}

// SplitSections splits markdown into header-delimited sections. Text
// before the first header becomes a level-0 section. Lines inside fenced
// code blocks are never treated as headers.
func SplitSections(content string) []Section {
	lines := strings.Split(content, "\n")
	headerStack := make([]string, 6)

	var sections []Section
	current := Section{}
	var body strings.Builder
	inFence := false

	flush := func() {
		current.Text = body.String()
		if strings.TrimSpace(current.Text) != "" {
			sections = append(sections, current)
		}
		body.Reset()
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}

		if !inFence {
			if match := headerPattern.FindStringSubmatch(line); match != nil {
				flush()

				level := len(match[1])
				title := strings.TrimSpace(match[2])
				headerStack[level-1] = title
				for j := level; j < 6; j++ {
					headerStack[j] = ""
				}
				var parts []string
				for j := 0; j < level; j++ {
					if headerStack[j] != "" {
						parts = append(parts, headerStack[j])
					}
				}
				current = Section{Level: level, Title: title, HeaderPath: strings.Join(parts, " > ")}
			}
		}

		body.WriteString(line)
		if i < len(lines)-1 {
			body.WriteString("\n")
		}
	}
	flush()
	return sections
}

package ui

import "github.com/charmbracelet/lipgloss"

// Palette, as ANSI 256 color codes.
const (
	ColorAccent = "114"
	ColorMuted  = "245"
	ColorFaint  = "238"
	ColorRed    = "203"
	ColorYellow = "221"
)

// Styles holds the lipgloss styles of the TUI.
type Styles struct {
	Title   lipgloss.Style
	Active  lipgloss.Style
	Done    lipgloss.Style
	Pending lipgloss.Style
	Label   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Panel   lipgloss.Style
}

// DefaultStyles returns the colored theme.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Done:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Pending: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorFaint)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorFaint)).
			Padding(0, 1),
	}
}

// PlainStyles returns styles without color.
func PlainStyles() Styles {
	return Styles{
		Panel: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
	}
}

// StylesFor returns PlainStyles when noColor is set.
func StylesFor(noColor bool) Styles {
	if noColor {
		return PlainStyles()
	}
	return DefaultStyles()
}

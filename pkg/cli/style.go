package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
)

// Theme defines the terminal colours.
type Theme struct {
	Primary lipgloss.Color // titles and borders
	Dim     lipgloss.Color // secondary text
	Green   lipgloss.Color
	Yellow  lipgloss.Color
	Red     lipgloss.Color
}

// DefaultTheme is the default bright theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Green:   lipgloss.Color("#3fb950"),
	Yellow:  lipgloss.Color("#d29922"),
	Red:     lipgloss.Color("#f85149"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Help   lipgloss.Style
	Box    lipgloss.Style
	signal map[condition.Signal]lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	label := lipgloss.NewStyle().Bold(true)
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Help:  lipgloss.NewStyle().Foreground(t.Dim),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),
		signal: map[condition.Signal]lipgloss.Style{
			condition.SignalGreen:  label.Foreground(t.Green),
			condition.SignalYellow: label.Foreground(t.Yellow),
			condition.SignalRed:    label.Foreground(t.Red),
		},
	}
}

// Label renders c in its signal colour.
func (s Styles) Label(c condition.Class) string {
	if !c.Valid() {
		return c.String()
	}
	st, ok := s.signal[c.Signal()]
	if !ok {
		return c.String()
	}
	return st.Render(c.String())
}

// Bar renders p in [0, 1] as a bar of the given width.
func (s Styles) Bar(p float64, width int) string {
	if width <= 0 {
		return ""
	}
	p = min(max(p, 0), 1)
	filled := int(p*float64(width) + 0.5)
	return strings.Repeat("█", filled) + s.Help.Render(strings.Repeat("░", width-filled))
}

// Result renders a classification in a bordered box: the label in its
// signal colour and one probability bar per class.
func (s Styles) Result(title string, res *model.Result) string {
	lines := []string{
		s.Title.Render(title),
		"",
		fmt.Sprintf("condition  %s  (%s)", s.Label(res.Label), res.Signal),
		fmt.Sprintf("confidence %s", FormatPercent(res.Confidence())),
		"",
	}
	width := 0
	for _, p := range res.Probabilities {
		width = max(width, lipgloss.Width(p.Class.String()))
	}
	for _, p := range res.Probabilities {
		name := p.Class.String()
		lines = append(lines, fmt.Sprintf("%s%s %s %6s",
			name, strings.Repeat(" ", width-lipgloss.Width(name)),
			s.Bar(p.Probability, 24), FormatPercent(p.Probability)))
	}
	return s.Box.Render(strings.Join(lines, "\n"))
}

package render

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var (
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
)

// Styles are the text styles used by the renderers. Without color every
// style renders its input unchanged.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles builds styles bound to w's color profile.
func NewStyles(w io.Writer, color bool) *Styles {
	r := lipgloss.NewRenderer(w)
	if !color {
		plain := r.NewStyle()
		return &Styles{
			Title:   plain,
			Label:   plain,
			Value:   plain,
			Success: plain,
			Warning: plain,
			Error:   plain,
			Muted:   plain,
		}
	}
	return &Styles{
		Title:   r.NewStyle().Bold(true).Foreground(PrimaryColor),
		Label:   r.NewStyle().Foreground(MutedColor),
		Value:   r.NewStyle(),
		Success: r.NewStyle().Foreground(SecondaryColor),
		Warning: r.NewStyle().Foreground(WarningColor),
		Error:   r.NewStyle().Foreground(ErrorColor).Bold(true),
		Muted:   r.NewStyle().Foreground(MutedColor).Italic(true),
	}
}

// KV renders label/value rows with the values aligned.
func (s *Styles) KV(rows [][2]string) string {
	width := 0
	for _, row := range rows {
		width = max(width, lipgloss.Width(row[0]))
	}
	var b strings.Builder
	for _, row := range rows {
		pad := strings.Repeat(" ", width-lipgloss.Width(row[0]))
		b.WriteString(s.Label.Render(row[0]))
		b.WriteString(pad)
		b.WriteString("  ")
		b.WriteString(s.Value.Render(row[1]))
		b.WriteString("\n")
	}
	return b.String()
}

// Truncate shortens s to maxWidth visual columns, adding "..." if truncated.
// Escape sequences and wide characters are measured correctly.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}

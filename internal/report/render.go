package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	green = lipgloss.Color("#10B981")
	red   = lipgloss.Color("#EF4444")
	gray  = lipgloss.Color("#6B7280")
	white = lipgloss.Color("#F9FAFB")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(white).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(gray).Width(18)
	successStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(gray)
)

// Render formats the end-of-run summary for the terminal.
func Render(sum Summary, elapsed time.Duration) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Run complete") + dimStyle.Render(fmt.Sprintf(" (%s)", elapsed.Round(time.Second))))
	b.WriteString("\n\n")

	row := func(label string, value int, style lipgloss.Style) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(style.Render(fmt.Sprintf("%d", value)))
		b.WriteString("\n")
	}

	row("uploaded", sum.Uploaded, successStyle)
	row("failed", sum.Failed, errorStyle)
	row("skipped (size)", sum.SkippedSize, dimStyle)
	row("skipped (exists)", sum.SkippedExists, dimStyle)
	row("skipped (cached)", sum.SkippedCache, dimStyle)

	if len(sum.SizeSkips) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Too large for full download") + "\n")
		for _, s := range sum.SizeSkips {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s (%.0f MB)", s.RelPath, s.SizeMB)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

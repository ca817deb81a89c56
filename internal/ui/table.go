package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/muurk/ssdpscan/internal/discovery"
)

// column is one column of the response table. A zero width takes the
// remaining space.
type column struct {
	title string
	width int
	value func(*discovery.Response) string
}

var responseColumns = []column{
	{title: "KIND", width: 8, value: func(r *discovery.Response) string { return r.Kind.String() }},
	{title: "TARGET", width: 36, value: func(r *discovery.Response) string { return r.Target }},
	{title: "LOCATION", width: 0, value: func(r *discovery.Response) string { return r.Location }},
	{title: "SERVER", width: 24, value: func(r *discovery.Response) string { return r.Server }},
}

// RenderResponses renders responses as an aligned table no wider than width.
func RenderResponses(responses []*discovery.Response, width int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	widths := columnWidths(width)

	var b strings.Builder
	cells := make([]string, len(responseColumns))
	for i, col := range responseColumns {
		cells[i] = TableHeaderStyle.Render(pad(col.title, widths[i]))
	}
	b.WriteString(strings.Join(cells, " "))
	b.WriteString("\n")

	for _, r := range responses {
		style := TableCellStyle
		if r.Kind == discovery.KindNotify {
			style = NotifyCellStyle
		}
		for i, col := range responseColumns {
			cells[i] = style.Render(pad(truncate(col.value(r), widths[i]), widths[i]))
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, " "), " "))
		b.WriteString("\n")
	}

	return b.String()
}

// columnWidths gives fixed columns their width, shrinking them if needed,
// and the flexible column whatever is left.
func columnWidths(total int) []int {
	widths := make([]int, len(responseColumns))
	available := total - (len(responseColumns) - 1)

	fixed := 0
	for i, col := range responseColumns {
		widths[i] = col.width
		fixed += col.width
	}

	const minFlexible = 16
	for fixed+minFlexible > available {
		// Shrink the widest fixed column
		widest := -1
		for i, col := range responseColumns {
			if col.width > 0 && (widest < 0 || widths[i] > widths[widest]) {
				widest = i
			}
		}
		if widest < 0 || widths[widest] <= 8 {
			break
		}
		widths[widest]--
		fixed--
	}

	for i, col := range responseColumns {
		if col.width == 0 {
			widths[i] = max(available-fixed, minFlexible)
		}
	}
	return widths
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func pad(s string, width int) string {
	return s + strings.Repeat(" ", max(width-lipgloss.Width(s), 0))
}

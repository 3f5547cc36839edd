package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// LipGloss signature purple/pink palette
var (
	headerColor  = lipgloss.Color("#F780FF") // Bright pink/magenta
	nameColor    = lipgloss.Color("#BD93F9") // Purple
	numberColor  = lipgloss.Color("#FF79C6") // Pink
	textColor    = lipgloss.Color("#E9E9F4") // Light purple/white
	borderColor  = lipgloss.Color("#6272A4") // Muted purple
	summaryColor = lipgloss.Color("#8BE9FD") // Cyan accent
	errorColor   = lipgloss.Color("#FF5555") // Red
	successColor = lipgloss.Color("#50FA7B") // Green
)

var (
	borderStyle  = lipgloss.NewStyle().Foreground(borderColor)
	summaryStyle = lipgloss.NewStyle().Foreground(summaryColor).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	titleStyle   = lipgloss.NewStyle().Foreground(headerColor).Bold(true)
)

type columnKind int

const (
	nameColumn columnKind = iota
	numberColumn
	textColumn
)

type column struct {
	title string
	width int
	kind  columnKind
}

func (c column) style() lipgloss.Style {
	s := lipgloss.NewStyle().Padding(0, 1).Width(c.width)
	switch c.kind {
	case nameColumn:
		return s.Foreground(nameColor)
	case numberColumn:
		return s.Foreground(numberColor).Align(lipgloss.Right)
	default:
		return s.Foreground(textColor)
	}
}

// renderTable prints rows under a header and separator line.
func renderTable(columns []column, rows [][]string) {
	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true).
		Padding(0, 1)

	headers := make([]string, len(columns))
	separatorParts := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = headerStyle.Width(c.width).Render(c.title)
		separatorParts[i] = strings.Repeat("─", c.width)
	}
	fmt.Println(strings.Join(headers, borderStyle.Render("│")))
	fmt.Println(borderStyle.Render(strings.Join(separatorParts, "┼")))

	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			cells[i] = c.style().Render(value)
		}
		fmt.Println(strings.Join(cells, borderStyle.Render("│")))
	}
}

func truncateCell(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	purple    = lipgloss.Color("99")
	gray      = lipgloss.Color("245")
	lightGray = lipgloss.Color("241")
	white     = lipgloss.Color("15")
	teal      = lipgloss.Color("#06ffa5")
)

// section is a titled table.
type section struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// printStyledTable renders sections to w. Colour is dropped when w is not a
// terminal.
func printStyledTable(w io.Writer, sections ...section) {
	re := lipgloss.NewRenderer(w)

	var (
		headerStyle  = re.NewStyle().Foreground(white).Bold(true).Align(lipgloss.Center)
		cellStyle    = re.NewStyle().PaddingLeft(1).PaddingRight(1)
		oddRowStyle  = cellStyle.Foreground(gray)
		evenRowStyle = cellStyle.Foreground(lightGray)
		borderStyle  = re.NewStyle().Foreground(purple)
		titleStyle   = re.NewStyle().Bold(true).Foreground(purple)
	)

	for _, s := range sections {
		if len(s.Rows) == 0 {
			continue
		}
		if s.Title != "" {
			fmt.Fprintln(w, titleStyle.Render(s.Title)+":")
		}

		t := table.New().
			Border(lipgloss.ThickBorder()).
			BorderStyle(borderStyle).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if row%2 == 0 {
					return evenRowStyle
				}
				return oddRowStyle
			})
		t.Headers(s.Headers...)
		t.Rows(s.Rows...)
		fmt.Fprintln(w, t.String())
	}
}

// printKV renders aligned key/value lines.
func printKV(w io.Writer, pairs ...[2]string) {
	re := lipgloss.NewRenderer(w)
	labelStyle := re.NewStyle().Bold(true).Foreground(purple)
	valueStyle := re.NewStyle().Foreground(teal)

	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Width(width+1).Render(p[0]+":"), valueStyle.Render(p[1]))
	}
}

// Package render formats catalog and playlist data for the terminal.
package render

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
)

// Sanitize drops control characters and invalid UTF-8 from tag values so a
// bad file cannot break the table layout.
func Sanitize(s string) string {
	clean := true
	for _, r := range s {
		if r == utf8.RuneError || unicode.IsControl(r) || r == '\u00a0' {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size <= 1:
		case r == '\u00a0':
			b.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate shortens s to maxWidth cells, ending with "..." when cut.
// Wide characters count as two cells.
func Truncate(s string, maxWidth int) string {
	return runewidth.Truncate(Sanitize(s), maxWidth, "...")
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Table renders rows under headers with a rounded border.
// Cells wider than maxCell are truncated; maxCell <= 0 disables truncation.
func Table(headers []string, rows [][]string, maxCell int) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, c := range r {
			if maxCell > 0 {
				cells[i] = Truncate(c, maxCell)
			} else {
				cells[i] = Sanitize(c)
			}
		}
		t.Row(cells...)
	}
	return t.String()
}

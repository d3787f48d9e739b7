// Package tables renders fixed-width text tables for console reports and
// the monitoring summary.
package tables

import (
	"strings"
)

// Table accumulates rows under a fixed header and renders them with columns
// sized to the widest cell. Numeric columns are right-aligned.
type Table struct {
	header []string
	rows   [][]string
}

// New creates a table with the given column titles.
func New(header ...string) *Table {
	return &Table{header: header}
}

// AddRow appends a row. Missing cells render empty, extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.header))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	t.rows = append(t.rows, row)
}

// String renders the table, one trailing newline per row.
func (t *Table) String() string {
	widths := t.columnWidths()
	numeric := t.numericColumns()

	var sb strings.Builder
	writeRow(&sb, t.header, widths, numeric)
	underline := make([]string, len(t.header))
	for i, h := range t.header {
		underline[i] = strings.Repeat("-", len(h))
	}
	writeRow(&sb, underline, widths, numeric)
	for _, row := range t.rows {
		writeRow(&sb, row, widths, numeric)
	}
	return sb.String()
}

func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func (t *Table) numericColumns() []bool {
	numeric := make([]bool, len(t.header))
	for i := range numeric {
		numeric[i] = true
	}
	for _, row := range t.rows {
		for i, cell := range row {
			numeric[i] = numeric[i] && isNumeric(cell)
		}
	}
	return numeric
}

func writeRow(sb *strings.Builder, cells []string, widths []int, numeric []bool) {
	for i, cell := range cells {
		if numeric[i] {
			sb.WriteString(pad(cell, widths[i]+1, true) + " ")
		} else {
			sb.WriteString(" " + pad(cell, widths[i]+1, false))
		}
	}
	sb.WriteString("\n")
}

func pad(s string, width int, left bool) string {
	if len(s) >= width {
		return s
	}
	fill := strings.Repeat(" ", width-len(s))
	if left {
		return fill + s
	}
	return s + fill
}

func isNumeric(s string) bool {
	const symbols = "0123456789 +-%.,"
	for _, ch := range s {
		if !strings.ContainsRune(symbols, ch) {
			return false
		}
	}
	return true
}

package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// TableColumn defines a column in a table.
type TableColumn struct {
	Name  string
	Width int
	Align Alignment
}

// Alignment defines text alignment in a column.
type Alignment int

// Alignment constants.
const (
	AlignLeft Alignment = iota
	AlignRight
)

// Table provides styled table rendering. Widths are display cells, so
// wide runes and emoji line up.
type Table struct {
	w       io.Writer
	styles  *TableStyles
	columns []TableColumn
}

// NewTable creates a new table with the given columns.
func NewTable(w io.Writer, columns []TableColumn) *Table {
	return &Table{
		w:       w,
		styles:  NewTableStyles(),
		columns: columns,
	}
}

// FitColumns widens each column to its longest value in rows, capped at max.
// Columns with a fixed non-zero Width are left alone.
func FitColumns(columns []TableColumn, rows [][]string, maxWidth int) []TableColumn {
	out := make([]TableColumn, len(columns))
	copy(out, columns)
	for i := range out {
		if out[i].Width > 0 {
			continue
		}
		w := runewidth.StringWidth(out[i].Name)
		for _, row := range rows {
			if i < len(row) {
				w = max(w, runewidth.StringWidth(row[i]))
			}
		}
		if maxWidth > 0 {
			w = min(w, maxWidth)
		}
		out[i].Width = w
	}
	return out
}

// WriteHeader writes the table header row.
func (t *Table) WriteHeader() {
	cells := make([]string, len(t.columns))
	for i, col := range t.columns {
		cells[i] = pad(col.Name, col)
	}
	_, _ = fmt.Fprintln(t.w, t.styles.Header.Render(strings.TrimRight(strings.Join(cells, " "), " ")))
}

// WriteRow writes a data row to the table.
func (t *Table) WriteRow(values ...string) {
	cells := make([]string, len(t.columns))
	for i, col := range t.columns {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		cells[i] = pad(value, col)
	}
	_, _ = fmt.Fprintln(t.w, strings.TrimRight(strings.Join(cells, " "), " "))
}

func pad(value string, col TableColumn) string {
	if col.Width > 1 && runewidth.StringWidth(value) > col.Width {
		value = runewidth.Truncate(value, col.Width, "…")
	}
	if col.Align == AlignRight {
		return runewidth.FillLeft(value, col.Width)
	}
	return runewidth.FillRight(value, col.Width)
}

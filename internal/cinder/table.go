package cinder

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/mrz1836/rackbrain/internal/history"
)

var fruColumns = []string{"id", "sn_tag", "test_passed", "test_finished"}

// FRUTable renders rows as a bordered table in the mysql client's -t
// layout. NULL columns print as NULL and ids are right-aligned.
func FRUTable(rows []history.FRU) string {
	cells := make([][]string, len(rows))
	for i, f := range rows {
		cells[i] = []string{strconv.FormatInt(f.ID, 10), f.SN, nullable(f.TestPassed), nullable(f.TestFinished)}
	}

	widths := make([]int, len(fruColumns))
	for i, name := range fruColumns {
		widths[i] = runewidth.StringWidth(name)
		for _, row := range cells {
			widths[i] = max(widths[i], runewidth.StringWidth(row[i]))
		}
	}

	var b strings.Builder
	border := func() {
		b.WriteByte('+')
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w+2))
			b.WriteByte('+')
		}
		b.WriteByte('\n')
	}
	line := func(values []string, rightAlignID bool) {
		b.WriteByte('|')
		for i, v := range values {
			b.WriteByte(' ')
			if i == 0 && rightAlignID {
				b.WriteString(runewidth.FillLeft(v, widths[i]))
			} else {
				b.WriteString(runewidth.FillRight(v, widths[i]))
			}
			b.WriteString(" |")
		}
		b.WriteByte('\n')
	}

	border()
	line(fruColumns, false)
	border()
	for _, row := range cells {
		line(row, true)
	}
	border()
	return strings.TrimRight(b.String(), "\n")
}

func nullable(s string) string {
	if s == "" {
		return "NULL"
	}
	return s
}

package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	columns := []TableColumn{
		{Name: "RULE", Width: 10, Align: AlignLeft},
		{Name: "COUNT", Width: 5, Align: AlignRight},
	}

	t.Run("WriteHeader", func(t *testing.T) {
		var buf bytes.Buffer
		NewTable(&buf, columns).WriteHeader()
		assert.Contains(t, buf.String(), "RULE")
		assert.Contains(t, buf.String(), "COUNT")
	})

	t.Run("WriteRow aligns", func(t *testing.T) {
		var buf bytes.Buffer
		NewTable(&buf, columns).WriteRow("psu", "42")
		assert.Equal(t, "psu           42\n", buf.String())
	})

	t.Run("WriteRow truncates long values", func(t *testing.T) {
		var buf bytes.Buffer
		NewTable(&buf, columns).WriteRow("verylongname", "1")
		assert.Contains(t, buf.String(), "verylongn…")
	})

	t.Run("WriteRow handles missing values", func(t *testing.T) {
		var buf bytes.Buffer
		NewTable(&buf, columns).WriteRow("only")
		assert.Equal(t, "only\n", buf.String())
	})

	t.Run("wide runes use display width", func(t *testing.T) {
		var buf bytes.Buffer
		NewTable(&buf, []TableColumn{{Name: "A", Width: 4}, {Name: "B", Width: 1}}).WriteRow("日本", "x")
		assert.Equal(t, "日本 x\n", buf.String())
	})
}

func TestFitColumns(t *testing.T) {
	t.Parallel()

	cols := FitColumns(
		[]TableColumn{{Name: "KEY"}, {Name: "N", Width: 3}},
		[][]string{{"MFGS-12345", "1"}, {"A", "2"}},
		8,
	)
	assert.Equal(t, 8, cols[0].Width, "capped at max")
	assert.Equal(t, 3, cols[1].Width, "fixed widths are kept")

	cols = FitColumns([]TableColumn{{Name: "ISSUE"}}, [][]string{{"K-1"}}, 0)
	assert.Equal(t, len("ISSUE"), cols[0].Width)
	assert.False(t, strings.Contains(cols[0].Name, " "))
}

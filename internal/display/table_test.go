package display

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Render(t *testing.T) {
	table := NewTable(TableStyleByName("default"), 0, nil)
	table.SetHeaders("ID", "NAME")
	table.SetColumnAlignment(0, AlignRight)
	table.AddRow("1", "users")
	table.AddRow("12", "orders")

	expected := strings.Join([]string{
		"+----+--------+",
		"| ID | NAME   |",
		"+----+--------+",
		"|  1 | users  |",
		"| 12 | orders |",
		"+----+--------+",
		"",
	}, "\n")
	assert.Equal(t, expected, table.Render())
}

func TestTable_MinimalStyle(t *testing.T) {
	table := NewTable(TableStyleByName("minimal"), 0, nil)
	table.SetHeaders("A", "B")
	table.AddRow("x", "yy")

	assert.Equal(t, " A  B\n x  yy\n", table.Render())
}

func TestTable_Truncates(t *testing.T) {
	table := NewTable(TableStyleByName("default"), 20, nil)
	table.SetHeaders("NAME")
	table.AddRow(strings.Repeat("x", 40))

	lines := strings.Split(strings.TrimSuffix(table.Render(), "\n"), "\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		assert.LessOrEqual(t, len([]rune(line)), 20)
	}
	assert.Equal(t, "+"+strings.Repeat("-", 18)+"+", lines[4])
	assert.Contains(t, table.Render(), "...")
}

func TestTable_Empty(t *testing.T) {
	assert.Empty(t, NewTable(TableStyleByName("default"), 0, nil).Render())
}

func TestTableStyleByName_Fallback(t *testing.T) {
	assert.Equal(t, "default", TableStyleByName("unknown").Name)
	assert.Equal(t, RoundedBorderStyle, TableStyleByName("rounded").BorderStyle)
}

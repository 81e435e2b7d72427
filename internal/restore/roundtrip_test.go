package restore

import (
	"context"
	"encoding/hex"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/logging"
)

// serializeTable runs the dump serializer over a single mocked row of table
func serializeTable(t *testing.T, table, dbType string, value []byte) []string {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("INT", int64(0)),
		sqlmock.NewColumn("v").OfType(dbType, []byte{}),
	)
	if value != nil {
		rows.AddRow(int64(1), value)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `" + table + "`")).WillReturnRows(rows)

	var out []string
	err = backup.NewSerializer(db, 0, logging.NewDiscardLogger()).SerializeTable(context.Background(), table, func(stmt string) error {
		out = append(out, stmt)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	return out
}

// storedValue returns the bytes MySQL would store for a literal expression
func storedValue(t *testing.T, expr string) []byte {
	t.Helper()
	if strings.HasPrefix(expr, "0x") {
		raw, err := hex.DecodeString(expr[2:])
		require.NoError(t, err)
		return raw
	}
	require.True(t, len(expr) >= 2 && expr[0] == '\'' && expr[len(expr)-1] == '\'', expr)
	return []byte(unescapeLiteral(expr[1 : len(expr)-1]))
}

func TestGeneratedScriptReplaysValuesExactly(t *testing.T) {
	tests := []struct {
		name   string
		dbType string
		value  []byte
	}{
		{"quotes", "VARCHAR", []byte(`it's "quoted" ''twice''`)},
		{"backslashes", "VARCHAR", []byte(`C:\temp\x \n stays literal \\`)},
		{"statement terminator", "TEXT", []byte("a; DROP TABLE users; b;")},
		{"comment markers", "TEXT", []byte("-- not a comment\n# nor this /* nor this */")},
		{"newlines", "TEXT", []byte("line1\nline2\r\n\ttabbed\n")},
		{"json looking text", "VARCHAR", []byte(`["C:\temp\x"]`)},
		{"json looking object", "TEXT", []byte(`{"re": "\d+\s"}`)},
		{"json column", "JSON", []byte(`{"path":"C:\\dir","q":"a \"b\";--"}`)},
		{"binary", "BLOB", []byte{0xff, 0x00, 0x27, 0x5c, 0x3b}},
		{"control bytes", "TEXT", []byte("nul\x00 ctrl-z\x1a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var script strings.Builder
			script.WriteString(backup.MarkerGenerated + "2024-03-01 10:00:00\n")
			script.WriteString(backup.MarkerType + "FULL\n")
			script.WriteString(backup.MarkerTables + "2\n")
			script.WriteString(backup.PragmaDisableFKCheck + "\n")
			script.WriteString("\n" + backup.MarkerData + "items\n")
			for _, stmt := range serializeTable(t, "items", tt.dbType, tt.value) {
				script.WriteString(stmt + "\n")
			}
			script.WriteString(backup.MarkerEndOfData + "items\n")
			script.WriteString("\n" + backup.MarkerData + "empty\n")
			for _, stmt := range serializeTable(t, "empty", tt.dbType, nil) {
				script.WriteString(stmt + "\n")
			}
			script.WriteString(backup.MarkerEndOfData + "empty\n")
			script.WriteString("\n" + backup.PragmaEnableFKCheck + "\n")
			text := script.String()

			inspector := &fakeInspector{columns: map[string][]string{"items": {"id", "v"}}}
			statements, drift, err := NewDriftCorrector(inspector, nil).Correct(context.Background(), SplitScript(text))
			require.NoError(t, err)
			assert.Empty(t, drift.Renamed)
			assert.Empty(t, drift.Dropped)

			repaired, report := NewRepairer("alembic_version").
				ForGeneratedScript(IsGeneratedScript(text)).
				Repair(statements)
			assert.Zero(t, report.JSONLiterals)
			require.Len(t, repaired, 1, "pragmas are dropped and the empty table yields no statement")
			assert.Equal(t, "items", repaired[0].Table)
			assert.True(t, strings.HasPrefix(repaired[0].SQL, "REPLACE INTO `items`"))

			insert, ok := parseInsert(repaired[0].SQL)
			require.True(t, ok)
			require.Len(t, insert.rows, 1)
			require.Len(t, insert.rows[0], 2)
			assert.Equal(t, "1", strings.TrimSpace(insert.rows[0][0]))
			assert.Equal(t, tt.value, storedValue(t, strings.TrimSpace(insert.rows[0][1])))
		})
	}
}

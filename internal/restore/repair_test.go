package restore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-dump-manager/internal/backup"
)

func TestRepairer_Repair(t *testing.T) {
	statements := SplitScript(
		"SET FOREIGN_KEY_CHECKS=0;\n" +
			"SET NAMES utf8mb4;\n" +
			"LOCK TABLES `users` WRITE;\n" +
			"DROP TABLE IF EXISTS `users`;\n" +
			"CREATE TABLE `users` (`id` int);\n" +
			"create table if not exists `logs` (`id` int);\n" +
			"INSERT INTO `users` (`id`) VALUES (1);\n" +
			"insert into `alembic_version` (`version_num`) VALUES ('abc123');\n" +
			"DROP TABLE `alembic_version`;\n" +
			"INSERT IGNORE INTO `logs` (`id`) VALUES (1);\n" +
			"UNLOCK TABLES;\n" +
			"SET FOREIGN_KEY_CHECKS=1;\n")

	repaired, report := NewRepairer("alembic_version").Repair(statements)

	var sqls []string
	for _, s := range repaired {
		sqls = append(sqls, s.SQL)
	}
	assert.Equal(t, []string{
		"SET NAMES utf8mb4",
		"CREATE TABLE IF NOT EXISTS `users` (`id` int)",
		"create table if not exists `logs` (`id` int)",
		"REPLACE INTO `users` (`id`) VALUES (1)",
		"INSERT IGNORE INTO `alembic_version` (`version_num`) VALUES ('abc123')",
		"INSERT IGNORE INTO `logs` (`id`) VALUES (1)",
	}, sqls)

	assert.Equal(t, &RepairReport{
		Upserts:        1,
		IgnoredInserts: 1,
		CreateIfAbsent: 1,
		DroppedDrops:   2,
		DroppedPragmas: 4,
	}, report)
	assert.Len(t, report.Summary(), 5)
}

func TestRepairer_Idempotent(t *testing.T) {
	statements := SplitScript("CREATE TABLE `a` (`id` int);INSERT INTO `a` (`id`) VALUES (1);")
	r := NewRepairer("alembic_version")

	once, _ := r.Repair(statements)
	twice, report := r.Repair(once)
	assert.Equal(t, once, twice)
	assert.Empty(t, report.Summary())
}

func TestRepairJSONLiteral(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fixed  bool
		stored string
	}{
		{"valid json", `{"a":"b"}`, false, ""},
		{"escaped quote written raw", `{"msg":"say \"hi\""}`, true, `{"msg":"say \"hi\""}`},
		{"windows path", `{"path":"C:\\dir\\file"}`, true, `{"path":"C:\\dir\\file"}`},
		{"lone backslash", `["a\\d+"]`, true, `["a\\d+"]`},
		{"not json", `plain \\ text`, false, ""},
		{"hopeless", `{"a": \\q`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, fixed := repairJSONLiteral(tt.body)
			assert.Equal(t, tt.fixed, fixed)
			if !tt.fixed {
				return
			}
			stored := unescapeLiteral(body)
			require.True(t, json.Valid([]byte(stored)), stored)
			assert.Equal(t, tt.stored, stored)
		})
	}
}

func TestRepairer_RepairsJSONInData(t *testing.T) {
	statements := SplitScript(`INSERT INTO notificaciones (id, datos_adicionales) VALUES (1, '{"q":"a \"b\""}');`)

	repaired, report := NewRepairer("alembic_version").Repair(statements)
	require.Len(t, repaired, 1)
	assert.Equal(t, 1, report.JSONLiterals)
	assert.Equal(t, `REPLACE INTO notificaciones (id, datos_adicionales) VALUES (1, '{"q":"a \\"b\\""}')`, repaired[0].SQL)
}

func TestRepairer_GeneratedScriptKeepsBackslashLiterals(t *testing.T) {
	value := `["C:\temp\x"]`
	insert := "INSERT INTO `paths` (`id`, `v`) VALUES (1, " + backup.QuoteString(value) + ");\n"
	generated := backup.MarkerGenerated + "2024-03-01 10:00:00\n" + insert

	require.True(t, IsGeneratedScript(generated))
	repaired, report := NewRepairer("alembic_version").
		ForGeneratedScript(IsGeneratedScript(generated)).
		Repair(SplitScript(generated))
	require.Len(t, repaired, 1)
	assert.Zero(t, report.JSONLiterals)

	parsed, ok := parseInsert(repaired[0].SQL)
	require.True(t, ok)
	literal := parsed.rows[0][1]
	assert.Equal(t, backup.QuoteString(value), literal)
	assert.Equal(t, value, unescapeLiteral(literal[1:len(literal)-1]))

	// Scripts from other tools still get their JSON literals repaired.
	foreign := `INSERT INTO paths (id, v) VALUES (1, '["C:\\temp\\x"]');`
	assert.False(t, IsGeneratedScript(foreign))
	_, report = NewRepairer("alembic_version").Repair(SplitScript(foreign))
	assert.Equal(t, 1, report.JSONLiterals)
}

func TestIsGeneratedScript(t *testing.T) {
	assert.True(t, IsGeneratedScript("\ufeff\n"+backup.MarkerGenerated+"2024-03-01 10:00:00\n"))
	assert.False(t, IsGeneratedScript("-- MySQL dump 10.13\n"+backup.MarkerGenerated))
	assert.False(t, IsGeneratedScript(""))
}

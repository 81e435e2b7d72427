package backup

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-dump-manager/internal/logging"
)

var fixedDumpTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestWriter(t *testing.T, schema *fakeSchema, serializer *fakeSerializer, catalog *fakeCatalog, compression string) *Writer {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	w := NewWriter(schema, serializer, store, catalog, Options{Compression: compression}, logging.NewDiscardLogger())
	w.now = func() time.Time { return fixedDumpTime }
	return w
}

func readArtifact(t *testing.T, artifact *Artifact) string {
	t.Helper()
	data, err := os.ReadFile(artifact.Filepath)
	require.NoError(t, err)
	plain, _, err := NewCompressionManager().DecompressAuto(data, artifact.Filepath)
	require.NoError(t, err)
	return string(plain)
}

func TestWriterDump_Full(t *testing.T) {
	schema := &fakeSchema{tables: []string{"orders", "users"}}
	serializer := &fakeSerializer{statements: map[string][]string{
		"users": {"INSERT INTO `users` (`id`) VALUES\n  (1);"},
	}}
	catalog := &fakeCatalog{}
	w := newTestWriter(t, schema, serializer, catalog, "none")

	artifact, err := w.Dump(context.Background(), DumpRequest{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), artifact.ID)
	assert.Equal(t, "backup_full_20240301_100000.sql", artifact.Filename)
	assert.Equal(t, BackupTypeFull, artifact.BackupType)
	assert.Equal(t, BackupStatusCompleted, artifact.Status)
	assert.Equal(t, []string{"orders", "users"}, artifact.TablesIncluded.Names)
	assert.Equal(t, []int{DefaultRetention}, catalog.retained)

	script := readArtifact(t, artifact)
	expectedOrder := []string{
		"-- Backup generated on 2024-03-01 10:00:00",
		"-- Type: FULL",
		"-- Tables: 2",
		"SET FOREIGN_KEY_CHECKS=0;",
		"-- Table structure: orders",
		"CREATE TABLE `orders`",
		"-- Table data: orders",
		"-- Table `orders` is empty",
		"-- End of data for table: orders",
		"-- Table structure: users",
		"-- Table data: users",
		"INSERT INTO `users` (`id`) VALUES\n  (1);",
		"-- End of data for table: users",
		"SET FOREIGN_KEY_CHECKS=1;",
	}
	pos := 0
	for _, marker := range expectedOrder {
		idx := strings.Index(script[pos:], marker)
		require.GreaterOrEqual(t, idx, 0, "missing or out of order: %q", marker)
		pos += idx + len(marker)
	}
}

func TestWriterDump_PartialCompressed(t *testing.T) {
	serializer := &fakeSerializer{}
	catalog := &fakeCatalog{}
	w := newTestWriter(t, &fakeSchema{}, serializer, catalog, "gzip")

	artifact, err := w.Dump(context.Background(), DumpRequest{
		Tables: []string{"users", "orders", "users"},
		Label:  "nightly run/eu",
	})
	require.NoError(t, err)

	assert.Equal(t, "nightly_run_eu_partial_20240301_100000.sql.gz", artifact.Filename)
	assert.Equal(t, BackupTypePartial, artifact.BackupType)
	assert.Equal(t, []string{"users", "orders"}, artifact.TablesIncluded.Names)
	assert.Equal(t, []string{"users", "orders"}, serializer.tables)
	assert.NoFileExists(t, strings.TrimSuffix(artifact.Filepath, ".gz"))

	script := readArtifact(t, artifact)
	assert.Contains(t, script, "-- Type: PARTIAL")
	assert.Contains(t, script, "-- Tables: 2")
}

func TestWriterDump_StructureErrorBecomesComment(t *testing.T) {
	schema := &fakeSchema{
		tables:  []string{"broken", "users"},
		ddlErrs: map[string]error{"broken": errors.New("Error 1146: Table 'broken' doesn't exist")},
	}
	w := newTestWriter(t, schema, &fakeSerializer{}, &fakeCatalog{}, "none")

	artifact, err := w.Dump(context.Background(), DumpRequest{})
	require.NoError(t, err)

	script := readArtifact(t, artifact)
	assert.Contains(t, script, "-- Error reading structure of table broken: Error 1146")
	assert.Contains(t, script, "-- Table structure: users")
}

func TestWriterDump_ExcludeTables(t *testing.T) {
	schema := &fakeSchema{tables: []string{"alembic_version", "orders", "users"}}
	serializer := &fakeSerializer{}
	w := newTestWriter(t, schema, serializer, &fakeCatalog{}, "none")

	artifact, err := w.Dump(context.Background(), DumpRequest{Label: "pre_restore_safety", Exclude: []string{"ALEMBIC_VERSION"}})
	require.NoError(t, err)

	assert.Equal(t, BackupTypeFull, artifact.BackupType)
	assert.Equal(t, []string{"orders", "users"}, serializer.tables)
	assert.True(t, strings.HasPrefix(artifact.Filename, "pre_restore_safety_full_"))
}

func TestWriterDump_SkipsCatalogTable(t *testing.T) {
	schema := &fakeSchema{tables: []string{"Backups", "orders", "users"}}
	serializer := &fakeSerializer{}
	w := newTestWriter(t, schema, serializer, &fakeCatalog{}, "none")

	artifact, err := w.Dump(context.Background(), DumpRequest{})
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "users"}, serializer.tables)
	assert.Equal(t, []string{"orders", "users"}, artifact.TablesIncluded.Names)

	script := readArtifact(t, artifact)
	assert.Contains(t, script, "-- Tables: 2")
	assert.NotContains(t, script, "-- Table structure: Backups")
}

func TestWriterDump_SameSecondDumpsKeepBothFiles(t *testing.T) {
	schema := &fakeSchema{tables: []string{"users"}}
	catalog := &fakeCatalog{}
	w := newTestWriter(t, schema, &fakeSerializer{}, catalog, "gzip")

	first, err := w.Dump(context.Background(), DumpRequest{})
	require.NoError(t, err)
	firstScript := readArtifact(t, first)

	second, err := w.Dump(context.Background(), DumpRequest{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Filepath, second.Filepath)
	assert.Equal(t, "backup_full_20240301_100000.sql.gz", first.Filename)
	assert.True(t, strings.HasSuffix(second.Filename, ".sql.gz"))
	assert.FileExists(t, first.Filepath)
	assert.FileExists(t, second.Filepath)
	assert.Equal(t, firstScript, readArtifact(t, first), "first artifact must not be overwritten")
	assert.Contains(t, readArtifact(t, second), "-- Table structure: users")
	assert.Len(t, catalog.artifacts, 2)
}

func TestWriterDump_RetentionAndMirrorFailuresAreNotFatal(t *testing.T) {
	catalog := &fakeCatalog{retainErr: errors.New("lock wait timeout")}
	w := newTestWriter(t, &fakeSchema{tables: []string{"users"}}, &fakeSerializer{}, catalog, "zstd")
	w.SetMirror(&fakeMirror{uploadErr: errors.New("bucket unreachable")})

	artifact, err := w.Dump(context.Background(), DumpRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(artifact.Filename, ".sql.zst"))
	assert.Len(t, catalog.artifacts, 1)
}

func TestWriterDump_MirrorsArtifact(t *testing.T) {
	mirror := &fakeMirror{}
	w := newTestWriter(t, &fakeSchema{tables: []string{"users"}}, &fakeSerializer{}, &fakeCatalog{}, "gzip")
	w.SetMirror(mirror)

	artifact, err := w.Dump(context.Background(), DumpRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{artifact.Filename}, mirror.uploaded)
}

func TestWriterDump_SkipRetention(t *testing.T) {
	catalog := &fakeCatalog{}
	w := newTestWriter(t, &fakeSchema{tables: []string{"users", "alembic_version"}}, &fakeSerializer{}, catalog, "none")

	artifact, err := w.Dump(context.Background(), DumpRequest{
		Label:         "pre_restore_safety",
		Exclude:       []string{"ALEMBIC_VERSION"},
		SkipRetention: true,
	})
	require.NoError(t, err)

	assert.Empty(t, catalog.retained)
	assert.Equal(t, BackupTypeFull, artifact.BackupType)
	assert.NotContains(t, readArtifact(t, artifact), "alembic_version")
}

func TestWriterDump_Errors(t *testing.T) {
	t.Run("invalid request", func(t *testing.T) {
		w := newTestWriter(t, &fakeSchema{}, &fakeSerializer{}, &fakeCatalog{}, "none")
		_, err := w.Dump(context.Background(), DumpRequest{Tables: []string{}})
		assert.True(t, IsValidation(err))
	})

	t.Run("table listing fails", func(t *testing.T) {
		w := newTestWriter(t, &fakeSchema{listErr: errors.New("connection refused")}, &fakeSerializer{}, &fakeCatalog{}, "none")
		_, err := w.Dump(context.Background(), DumpRequest{})
		assert.Equal(t, BackupErrorTypeDatabase, ErrorType(err))
	})

	t.Run("registration fails", func(t *testing.T) {
		catalog := &fakeCatalog{createErr: NewDatabaseError("insert failed", nil)}
		w := newTestWriter(t, &fakeSchema{tables: []string{"users"}}, &fakeSerializer{}, catalog, "none")
		_, err := w.Dump(context.Background(), DumpRequest{})
		assert.Equal(t, BackupErrorTypeDatabase, ErrorType(err))
		assert.Empty(t, catalog.retained)
	})
}

func TestDumpFileName(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC)

	assert.Equal(t, "backup_full_20241231_235958.sql", DumpFileName("", BackupTypeFull, at))
	assert.Equal(t, "a_b_c_partial_20241231_235958.sql", DumpFileName(`a/b\c`, BackupTypePartial, at))
	assert.Equal(t, "weekly_report_full_20241231_235958.sql", DumpFileName("  weekly \t report ", BackupTypeFull, at))
}

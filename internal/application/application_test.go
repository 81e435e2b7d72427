package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/config"
	"mysql-dump-manager/internal/logging"
	"mysql-dump-manager/internal/scheduler"
)

var catalogRowColumns = []string{"id", "filename", "filepath", "size_mb", "tables_included", "backup_type", "status", "created_at"}

func newTestApp(t *testing.T) (*Application, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Username = "root"
	cfg.Database.Database = "restaurant"
	cfg.Backup.Directory = dir

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `backups`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	app, err := NewWithDB(context.Background(), cfg, db, logging.NewDiscardLogger())
	require.NoError(t, err)
	return app, mock, dir
}

func expectArtifactRow(mock sqlmock.Sqlmock, id int64, name, path string) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM backups WHERE id = ?")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(catalogRowColumns).
			AddRow(id, name, path, 0.01, nil, "full", "completed", time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)))
}

func TestNewWithDB(t *testing.T) {
	app, mock, _ := newTestApp(t)
	assert.NotNil(t, app.restorer)
	assert.NotNil(t, app.scheduler)
	assert.NotNil(t, app.ShutdownHandler())
	assert.Equal(t, "restaurant", app.Config().Database.Database)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithDB_CatalogSchemaFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := config.Default()
	cfg.Backup.Directory = t.TempDir()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `backups`")).
		WillReturnError(errors.New("access denied"))

	_, err = NewWithDB(context.Background(), cfg, db, logging.NewDiscardLogger())
	require.Error(t, err)
	assert.Equal(t, backup.BackupErrorTypeDatabase, backup.ErrorType(err))
}

func TestRestoreDump_RequiresConfirmation(t *testing.T) {
	app, mock, _ := newTestApp(t)

	result, err := app.RestoreDump(context.Background(), 7, false)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, backup.IsValidation(err))

	// nothing beyond the catalog bootstrap touched the database
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Zero(t, app.metrics.Snapshot().Operations[backup.OperationRestore])
}

func TestRestoreDump_UnknownArtifact(t *testing.T) {
	app, mock, _ := newTestApp(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM backups WHERE id = ?")).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(catalogRowColumns))

	_, err := app.RestoreDump(context.Background(), 404, true)
	require.Error(t, err)
	assert.True(t, backup.IsNotFound(err))

	restores := app.metrics.Snapshot().Operations[backup.OperationRestore]
	require.NotNil(t, restores)
	assert.Equal(t, int64(1), restores.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAndListDumps(t *testing.T) {
	app, mock, dir := newTestApp(t)
	path := filepath.Join(dir, "backup_20240301_020000_full.sql.gz")

	expectArtifactRow(mock, 3, filepath.Base(path), path)
	artifact, err := app.GetDump(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), artifact.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM backups ORDER BY created_at DESC, id DESC")).
		WillReturnRows(sqlmock.NewRows(catalogRowColumns))
	artifacts, err := app.ListDumps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	mock.ExpectQuery(regexp.QuoteMeta("FROM backups WHERE id = ?")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(catalogRowColumns))
	_, err = app.GetDump(context.Background(), 9)
	assert.True(t, backup.IsNotFound(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDump(t *testing.T) {
	app, mock, dir := newTestApp(t)
	path := filepath.Join(dir, "backup_20240301_020000_full.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1;"), 0644))

	expectArtifactRow(mock, 5, filepath.Base(path), path)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM backups WHERE id = ?")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := app.DeleteDump(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, path)

	mock.ExpectQuery(regexp.QuoteMeta("FROM backups WHERE id = ?")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(catalogRowColumns))
	deleted, err = app.DeleteDump(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadDump(t *testing.T) {
	app, mock, dir := newTestApp(t)
	path := filepath.Join(dir, "backup_20240301_020000_full.sql.gz")
	content := []byte{0x1f, 0x8b, 0x08, 0x00}
	require.NoError(t, os.WriteFile(path, content, 0644))

	expectArtifactRow(mock, 1, "backup_20240301_020000_full.sql", path)
	download, err := app.DownloadDump(context.Background(), 1)
	require.NoError(t, err)
	defer download.Body.Close()

	assert.Equal(t, "backup_20240301_020000_full.sql.gz", download.Name)
	assert.Equal(t, "application/gzip", download.ContentType)
	assert.Equal(t, int64(len(content)), download.Size)
	data, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDownloadDump_MissingFile(t *testing.T) {
	app, mock, dir := newTestApp(t)
	path := filepath.Join(dir, "gone.sql")

	expectArtifactRow(mock, 2, "gone.sql", path)
	_, err := app.DownloadDump(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, backup.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportDump(t *testing.T) {
	app, mock, dir := newTestApp(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO backups")).
		WillReturnResult(sqlmock.NewResult(12, 1))

	script := "CREATE TABLE `users` (`id` int);\nINSERT INTO `users` VALUES (1);\n"
	artifact, err := app.ImportDump(context.Background(), strings.NewReader(script), "prod copy.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(12), artifact.ID)
	assert.FileExists(t, artifact.Filepath)
	assert.Equal(t, dir, filepath.Dir(artifact.Filepath))

	imports := app.metrics.Snapshot().Operations[backup.OperationImport]
	require.NotNil(t, imports)
	assert.Equal(t, int64(1), imports.Success)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportDump_RejectsExtension(t *testing.T) {
	app, mock, dir := newTestApp(t)

	_, err := app.ImportDump(context.Background(), strings.NewReader("x"), "notes.txt")
	require.Error(t, err)
	assert.True(t, backup.IsValidation(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledDumps(t *testing.T) {
	app, _, _ := newTestApp(t)

	job, err := app.ScheduleDump(scheduler.Request{Hour: 2, Minute: 30})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)

	_, err = app.ScheduleDump(scheduler.Request{Hour: 3, Type: backup.BackupTypePartial})
	assert.True(t, backup.IsValidation(err))

	jobs := app.ListScheduledDumps()
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	assert.True(t, app.CancelScheduledDump(job.ID))
	assert.False(t, app.CancelScheduledDump(job.ID))
	assert.Empty(t, app.ListScheduledDumps())
}

func TestScheduleConfigured(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.config.Schedules = []config.ScheduleConfig{
		{Hour: 1, Type: "full"},
		{Hour: 12, Days: []int{5, 6}, Type: "partial", Tables: []string{"orders"}},
	}

	jobs, err := app.ScheduleConfigured()
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Len(t, app.ListScheduledDumps(), 2)
}

func TestServe_StopsWhenContextDone(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, time.Second) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestListDatabaseTables(t *testing.T) {
	app, mock, _ := newTestApp(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES")).
		WithArgs("restaurant").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("orders").AddRow("users"))

	tables, err := app.ListDatabaseTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDatabaseTables_HidesInternals(t *testing.T) {
	app, mock, _ := newTestApp(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES")).
		WillReturnError(errors.New("table definition cache corrupted at 0x7f3a"))

	_, err := app.ListDatabaseTables(context.Background())
	require.Error(t, err)
	assert.Equal(t, backup.BackupErrorTypeInternal, backup.ErrorType(err))
	assert.NotContains(t, err.Error(), "0x7f3a")
}

func TestStats(t *testing.T) {
	app, mock, _ := newTestApp(t)
	last := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "size", "full", "partial", "last"}).
			AddRow(3, 12.5, 2, 1, last))

	_, err := app.ScheduleDump(scheduler.Request{Hour: 4})
	require.NoError(t, err)

	stats, err := app.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Catalog.TotalBackups)
	assert.Equal(t, 12.5, stats.Catalog.TotalSizeMB)
	assert.Equal(t, 1, stats.Scheduled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurface(t *testing.T) {
	app, _, _ := newTestApp(t)

	notFound := backup.NewNotFoundError("backup 1 not found", nil)
	assert.Same(t, notFound, app.surface("get dump", notFound))

	internal := app.surface("create dump", backup.NewInternalError("writer crashed", errors.New("nil map write in worker 3")))
	assert.Equal(t, backup.BackupErrorTypeInternal, backup.ErrorType(internal))
	assert.NotContains(t, internal.Error(), "worker 3")

	timeout := app.surface("restore dump", fmt.Errorf("waiting: %w", context.DeadlineExceeded))
	assert.Equal(t, backup.BackupErrorTypeTimeout, backup.ErrorType(timeout))

	unknown := app.surface("list dumps", errors.New("secret detail"))
	assert.Equal(t, backup.BackupErrorTypeInternal, backup.ErrorType(unknown))
	assert.Equal(t, "INTERNAL_ERROR: list dumps failed", unknown.Error())
}

func TestRecoverPanic(t *testing.T) {
	app, _, _ := newTestApp(t)

	run := func() (err error) {
		defer app.recoverPanic("create dump", &err)
		panic("boom")
	}
	err := run()
	assert.Equal(t, backup.BackupErrorTypeInternal, backup.ErrorType(err))
}

func TestTroubleshootingHints(t *testing.T) {
	assert.NotEmpty(t, TroubleshootingHints(backup.NewReplayError("failed", nil)))
	assert.NotEmpty(t, TroubleshootingHints(backup.NewTimeoutError("slow", nil)))
	assert.Nil(t, TroubleshootingHints(errors.New("plain")))
}

package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/config"
	"mysql-dump-manager/internal/database"
	appErrors "mysql-dump-manager/internal/errors"
	"mysql-dump-manager/internal/logging"
	"mysql-dump-manager/internal/restore"
	"mysql-dump-manager/internal/scheduler"
	"mysql-dump-manager/internal/schema"
)

// Application wires the dump, import, restore and scheduling components
// around one database handle and exposes every caller operation
type Application struct {
	config *config.Config
	logger *logging.Logger
	db     *sql.DB
	dbSvc  *database.Service

	store        *backup.FileStore
	catalog      *backup.Catalog
	writer       *backup.Writer
	importer     *backup.Importer
	retention    *backup.RetentionManager
	introspector *schema.Introspector
	restorer     *restore.Engine
	scheduler    *scheduler.Scheduler
	metrics      *backup.MetricsCollector

	classifier      *appErrors.ErrorClassifier
	shutdownHandler *appErrors.GracefulShutdownHandler
}

// Download is an open artifact file ready to be streamed to a caller
type Download struct {
	Artifact    *backup.Artifact
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Stats combines catalog totals with in-process operation metrics
type Stats struct {
	Catalog   *backup.CatalogStats   `json:"catalog" yaml:"catalog"`
	Metrics   backup.MetricsSnapshot `json:"metrics" yaml:"metrics"`
	Scheduled int                    `json:"scheduled" yaml:"scheduled"`
}

// New connects to the configured database and builds the application
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Application, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	dbSvc := database.NewService(logger)
	db, err := dbSvc.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	app, err := NewWithDB(ctx, cfg, db, logger)
	if err != nil {
		dbSvc.Close(db)
		return nil, err
	}
	app.dbSvc = dbSvc
	return app, nil
}

// NewWithDB builds the application over an existing connection pool
func NewWithDB(ctx context.Context, cfg *config.Config, db *sql.DB, logger *logging.Logger) (*Application, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	cfg.SetDefaults()

	store, err := backup.NewFileStore(cfg.Backup.Directory)
	if err != nil {
		return nil, err
	}

	catalog := backup.NewCatalog(db, store, logger)
	if err := catalog.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	introspector := schema.NewIntrospector(db, cfg.Database.Database)
	serializer := backup.NewSerializer(db, cfg.Backup.BatchSize, logger)
	writer := backup.NewWriter(introspector, serializer, store, catalog, cfg.Backup, logger)

	mirror, err := backup.NewArtifactMirror(ctx, cfg.Mirror)
	if err != nil {
		return nil, err
	}
	if mirror != nil {
		catalog.SetMirror(mirror)
		writer.SetMirror(mirror)
		logger.WithField("mirror", mirror.Name()).Info("Offsite mirror enabled")
	}

	app := &Application{
		config:          cfg,
		logger:          logger,
		db:              db,
		store:           store,
		catalog:         catalog,
		writer:          writer,
		importer:        backup.NewImporter(store, catalog, logger),
		retention:       backup.NewRetentionManager(catalog, store, cfg.Backup.Retention, logger),
		introspector:    introspector,
		metrics:         backup.NewMetricsCollector(),
		classifier:      appErrors.NewErrorClassifier(),
		shutdownHandler: appErrors.NewGracefulShutdownHandler(),
	}

	app.restorer = restore.NewEngine(db, catalog, store, introspector, writer, cfg.Restore, logger)
	app.scheduler = scheduler.New(writer, logger, scheduler.WithRunHook(app.recordScheduledRun))

	return app, nil
}

// CreateDump writes a full dump, or a partial one when req names tables
func (app *Application) CreateDump(ctx context.Context, req backup.DumpRequest) (artifact *backup.Artifact, err error) {
	defer app.recoverPanic("create dump", &err)
	start := time.Now()

	artifact, err = app.writer.Dump(ctx, req)
	app.metrics.Record(backup.OperationDump, err == nil, time.Since(start))
	if err != nil {
		return nil, app.surface("create dump", err)
	}
	app.recordDumpSize(artifact)
	return artifact, nil
}

// ImportDump stores and registers an externally produced dump
func (app *Application) ImportDump(ctx context.Context, r io.Reader, name string) (artifact *backup.Artifact, err error) {
	defer app.recoverPanic("import dump", &err)
	start := time.Now()

	artifact, err = app.importer.Import(ctx, r, name)
	app.metrics.Record(backup.OperationImport, err == nil, time.Since(start))
	if err != nil {
		return nil, app.surface("import dump", err)
	}
	return artifact, nil
}

// ListDumps returns every catalogued artifact, newest first
func (app *Application) ListDumps(ctx context.Context) ([]*backup.Artifact, error) {
	artifacts, err := app.catalog.List(ctx)
	if err != nil {
		return nil, app.surface("list dumps", err)
	}
	return artifacts, nil
}

// GetDump returns one artifact
func (app *Application) GetDump(ctx context.Context, id int64) (*backup.Artifact, error) {
	artifact, err := app.catalog.Get(ctx, id)
	if err != nil {
		return nil, app.surface("get dump", err)
	}
	return artifact, nil
}

// DeleteDump removes an artifact and its file. It reports false when the id
// is unknown.
func (app *Application) DeleteDump(ctx context.Context, id int64) (bool, error) {
	deleted, err := app.catalog.Delete(ctx, id)
	if err != nil {
		return false, app.surface("delete dump", err)
	}
	return deleted, nil
}

// DownloadDump opens an artifact's file. The caller closes Body.
func (app *Application) DownloadDump(ctx context.Context, id int64) (*Download, error) {
	artifact, err := app.catalog.Get(ctx, id)
	if err != nil {
		return nil, app.surface("download dump", err)
	}

	file, err := app.store.Open(artifact.Filepath)
	if err != nil {
		return nil, app.surface("download dump", err)
	}
	size, err := app.store.Size(artifact.Filepath)
	if err != nil {
		file.Close()
		return nil, app.surface("download dump", err)
	}

	return &Download{
		Artifact:    artifact,
		Name:        artifact.DownloadName(),
		ContentType: artifact.ContentType(),
		Size:        size,
		Body:        file,
	}, nil
}

// RestoreDump replays artifact id over the live database. Nothing happens
// unless confirm is set.
func (app *Application) RestoreDump(ctx context.Context, id int64, confirm bool) (result *restore.Result, err error) {
	if !confirm {
		return nil, backup.NewValidationError("restore requires explicit confirmation", nil).WithContext("backup_id", id)
	}
	defer app.recoverPanic("restore dump", &err)
	start := time.Now()

	result, err = app.restorer.Restore(ctx, id)
	app.metrics.Record(backup.OperationRestore, err == nil, time.Since(start))
	if err != nil {
		return result, app.surface("restore dump", err)
	}
	return result, nil
}

// ScheduleDump registers a recurring dump and returns its job
func (app *Application) ScheduleDump(req scheduler.Request) (*scheduler.JobInfo, error) {
	job, err := app.scheduler.Schedule(req)
	if err != nil {
		return nil, app.surface("schedule dump", err)
	}
	return job, nil
}

// ListScheduledDumps returns every registered job ordered by next run
func (app *Application) ListScheduledDumps() []scheduler.JobInfo {
	return app.scheduler.Jobs()
}

// CancelScheduledDump removes a job, reporting false when it is unknown
func (app *Application) CancelScheduledDump(id string) bool {
	return app.scheduler.Cancel(id)
}

// ListDatabaseTables returns the base tables of the live schema
func (app *Application) ListDatabaseTables(ctx context.Context) ([]string, error) {
	tables, err := app.introspector.ListTables(ctx)
	if err != nil {
		return nil, app.surface("list tables", err)
	}
	return tables, nil
}

// Stats returns catalog totals plus what this process has recorded
func (app *Application) Stats(ctx context.Context) (*Stats, error) {
	catalogStats, err := app.catalog.Stats(ctx)
	if err != nil {
		return nil, app.surface("collect stats", err)
	}
	return &Stats{
		Catalog:   catalogStats,
		Metrics:   app.metrics.Snapshot(),
		Scheduled: len(app.scheduler.Jobs()),
	}, nil
}

// Prune applies the retention policy. With dryRun set it only reports the
// artifacts that would be removed.
func (app *Application) Prune(ctx context.Context, dryRun bool) (*backup.RetentionResult, error) {
	result, err := app.retention.Apply(ctx, dryRun)
	if err != nil {
		return nil, app.surface("prune dumps", err)
	}
	return result, nil
}

// Orphans lists artifact files that no catalog row references
func (app *Application) Orphans(ctx context.Context) ([]string, error) {
	orphans, err := app.retention.Orphans(ctx)
	if err != nil {
		return nil, app.surface("find orphans", err)
	}
	return orphans, nil
}

// ScheduleConfigured registers every schedule from the configuration
func (app *Application) ScheduleConfigured() ([]*scheduler.JobInfo, error) {
	jobs := make([]*scheduler.JobInfo, 0, len(app.config.Schedules))
	for i, sc := range app.config.Schedules {
		job, err := app.ScheduleDump(sc.Request())
		if err != nil {
			return jobs, fmt.Errorf("schedules[%d]: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Serve runs the scheduler until ctx is done, then waits for running dumps
// to finish for at most grace
func (app *Application) Serve(ctx context.Context, grace time.Duration) error {
	app.scheduler.Start()
	app.logger.WithField("jobs", len(app.scheduler.Jobs())).Info("Scheduler started")

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := app.scheduler.Stop(stopCtx); err != nil {
		app.logger.WithField("error", err.Error()).Warn("Scheduler stopped before running dumps finished")
		return backup.NewTimeoutError("scheduled dumps still running at shutdown", err)
	}
	app.logger.Info("Scheduler stopped")
	return nil
}

// Config returns the effective configuration
func (app *Application) Config() *config.Config {
	return app.config
}

// GetLogger returns the application logger
func (app *Application) GetLogger() *logging.Logger {
	return app.logger
}

// ShutdownHandler returns the handler that runs cleanup on SIGINT/SIGTERM
func (app *Application) ShutdownHandler() *appErrors.GracefulShutdownHandler {
	return app.shutdownHandler
}

// Close stops the scheduler and releases the database connection
func (app *Application) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.scheduler.Stop(ctx); err != nil {
		app.logger.WithField("error", err.Error()).Warn("Scheduler did not stop cleanly")
	}

	if app.dbSvc != nil {
		return app.dbSvc.Close(app.db)
	}
	return app.db.Close()
}

func (app *Application) recordScheduledRun(jobID string, artifact *backup.Artifact, err error, duration time.Duration) {
	app.metrics.Record(backup.OperationDump, err == nil, duration)
	if err == nil {
		app.recordDumpSize(artifact)
	}
}

func (app *Application) recordDumpSize(artifact *backup.Artifact) {
	if artifact == nil {
		return
	}
	if size, err := app.store.Size(artifact.Filepath); err == nil {
		app.metrics.RecordDumpSize(size)
	}
}

// surface converts err into what callers may see. Classified backup errors
// pass through; anything else is logged in full and replaced with a generic
// internal failure.
func (app *Application) surface(operation string, err error) error {
	var backupErr *backup.BackupError
	if errors.As(err, &backupErr) {
		if backupErr.Type != backup.BackupErrorTypeInternal {
			return err
		}
		app.logger.WithFields(map[string]interface{}{
			"operation": operation,
			"error":     err.Error(),
		}).Error("Internal failure")
		return backup.NewInternalError(backupErr.Message, nil)
	}

	appErr := app.classifier.ClassifyError(err)
	app.logger.WithFields(map[string]interface{}{
		"operation":   operation,
		"error_type":  string(appErr.Type),
		"recoverable": appErr.IsRecoverable(),
		"error":       err.Error(),
	}).Error("Operation failed")

	switch appErr.Type {
	case appErrors.ErrorTypeTimeout, appErrors.ErrorTypeInterruption:
		return backup.NewTimeoutError(fmt.Sprintf("%s did not finish: %s", operation, appErrors.FormatUserError(appErr)), nil)
	case appErrors.ErrorTypeConnection, appErrors.ErrorTypePermission:
		return backup.NewDatabaseError(fmt.Sprintf("%s failed: %s", operation, appErrors.FormatUserError(appErr)), nil)
	}
	return backup.NewInternalError(fmt.Sprintf("%s failed", operation), nil)
}

func (app *Application) recoverPanic(operation string, err *error) {
	if r := recover(); r != nil {
		app.logger.WithFields(map[string]interface{}{
			"operation": operation,
			"panic":     fmt.Sprintf("%v", r),
		}).Error("Recovered from panic")
		*err = backup.NewInternalError(fmt.Sprintf("%s failed", operation), nil)
	}
}

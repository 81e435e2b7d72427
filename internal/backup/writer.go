package backup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mysql-dump-manager/internal/logging"
)

// Script markers shared by the writer, the importer and the restore engine
const (
	MarkerGenerated      = "-- Backup generated on "
	MarkerType           = "-- Type: "
	MarkerTables         = "-- Tables: "
	MarkerStructure      = "-- Table structure: "
	MarkerData           = "-- Table data: "
	MarkerEndOfData      = "-- End of data for table: "
	PragmaDisableFKCheck = "SET FOREIGN_KEY_CHECKS=0;"
	PragmaEnableFKCheck  = "SET FOREIGN_KEY_CHECKS=1;"
)

const fileTimestampLayout = "20060102_150405"

// Writer produces dump scripts and registers them as artifacts
type Writer struct {
	schema      SchemaSource
	serializer  TableSerializer
	store       *FileStore
	catalog     ArtifactCatalog
	compression *CompressionManager
	mirror      ArtifactMirror
	options     Options
	logger      *logging.Logger
	now         func() time.Time
}

// NewWriter creates a dump writer
func NewWriter(schema SchemaSource, serializer TableSerializer, store *FileStore, catalog ArtifactCatalog, options Options, logger *logging.Logger) *Writer {
	options.SetDefaults()
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Writer{
		schema:      schema,
		serializer:  serializer,
		store:       store,
		catalog:     catalog,
		compression: NewCompressionManager(),
		options:     options,
		logger:      logger,
		now:         time.Now,
	}
}

// SetMirror enables offsite replication of every finished artifact
func (w *Writer) SetMirror(mirror ArtifactMirror) {
	w.mirror = mirror
}

// Dump writes a script for the requested tables, compresses it, registers it
// and applies retention. Per-table failures are recorded as comments in the
// script and never abort the dump.
func (w *Writer) Dump(ctx context.Context, req DumpRequest) (artifact *Artifact, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	backupType := BackupTypeFull
	if req.IsPartial() {
		backupType = BackupTypePartial
	}

	done := w.logger.LogOperationStart("dump", map[string]interface{}{
		"type":  backupType,
		"label": req.Label,
	})
	defer func() { done(err) }()

	tables, err := w.resolveTables(ctx, req)
	if err != nil {
		return nil, err
	}

	startedAt := w.now()
	filename := DumpFileName(w.label(req.Label), backupType, startedAt)

	file, path, err := w.store.Create(filename)
	if err != nil {
		return nil, err
	}

	if err := w.writeScript(ctx, file, backupType, tables, startedAt); err != nil {
		file.Close()
		removeIfExists(path)
		return nil, err
	}
	if err := file.Close(); err != nil {
		removeIfExists(path)
		return nil, NewStorageError("failed to close dump file", err)
	}

	path = w.compress(path)

	size, err := w.store.Size(path)
	if err != nil {
		return nil, err
	}

	artifact = &Artifact{
		Filename:       filepath.Base(path),
		Filepath:       path,
		SizeMB:         RoundSizeMB(size),
		BackupType:     backupType,
		Status:         BackupStatusCompleted,
		CreatedAt:      startedAt,
		TablesIncluded: NewTableList(tables...),
	}

	if _, err := w.catalog.Create(ctx, artifact); err != nil {
		return nil, err
	}

	w.replicate(ctx, artifact)

	if req.SkipRetention {
		return artifact, nil
	}
	if deleted, err := w.catalog.Retain(ctx, w.options.Retention); err != nil {
		w.logger.WithFields(map[string]interface{}{
			"keep":    w.options.Retention,
			"deleted": deleted,
			"error":   err.Error(),
		}).Warn("Retention sweep failed")
	}

	return artifact, nil
}

func (w *Writer) resolveTables(ctx context.Context, req DumpRequest) ([]string, error) {
	if req.IsPartial() {
		return dedupeTables(req.Tables), nil
	}

	all, err := w.schema.ListTables(ctx)
	if err != nil {
		return nil, NewDatabaseError("failed to list tables", err)
	}

	// The catalog lives in the dumped database but never belongs in a dump.
	excluded := map[string]bool{CatalogTable: true}
	for _, t := range req.Exclude {
		excluded[strings.ToLower(t)] = true
	}
	tables := make([]string, 0, len(all))
	for _, t := range all {
		if !excluded[strings.ToLower(t)] {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

func (w *Writer) writeScript(ctx context.Context, file *os.File, backupType BackupType, tables []string, startedAt time.Time) error {
	out := bufio.NewWriterSize(file, 64*1024)
	emit := func(s string) error {
		_, err := out.WriteString(s)
		return err
	}

	header := fmt.Sprintf("%s%s\n%s%s\n%s%d\n%s\n",
		MarkerGenerated, startedAt.Format(TimestampLayout),
		MarkerType, strings.ToUpper(string(backupType)),
		MarkerTables, len(tables),
		PragmaDisableFKCheck,
	)
	if err := emit(header); err != nil {
		return NewStorageError("failed to write dump header", err)
	}

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return NewTimeoutError("dump interrupted", err)
		}
		if err := w.writeTable(ctx, table, emit); err != nil {
			return NewStorageError(fmt.Sprintf("failed to write table %s", table), err)
		}
	}

	if err := emit("\n" + PragmaEnableFKCheck + "\n"); err != nil {
		return NewStorageError("failed to write dump footer", err)
	}
	if err := out.Flush(); err != nil {
		return NewStorageError("failed to flush dump file", err)
	}
	return nil
}

// writeTable only returns write errors; database errors become comments
func (w *Writer) writeTable(ctx context.Context, table string, emit func(string) error) error {
	if err := emit("\n" + MarkerStructure + table + "\n"); err != nil {
		return err
	}
	ddl, err := w.schema.TableDefinition(ctx, table)
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"table": table,
			"error": err.Error(),
		}).Warn("Failed to read table structure")
		if err := emit(fmt.Sprintf("-- Error reading structure of table %s: %s\n", table, oneLine(err.Error()))); err != nil {
			return err
		}
	} else if err := emit(strings.TrimRight(ddl, "; \n") + ";\n"); err != nil {
		return err
	}

	if err := emit("\n" + MarkerData + table + "\n"); err != nil {
		return err
	}
	err = w.serializer.SerializeTable(ctx, table, func(stmt string) error {
		return emit(stmt + "\n")
	})
	if err != nil {
		return err
	}

	return emit(MarkerEndOfData + table + "\n")
}

// compress replaces path with its compressed form; failures keep the plain file
func (w *Writer) compress(path string) string {
	algorithm := w.options.CompressionType()
	if algorithm == CompressionTypeNone {
		return path
	}

	compressed, stats, err := w.compression.CompressFile(path, algorithm, w.options.CompressionLevel)
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"file":      path,
			"algorithm": algorithm,
			"error":     err.Error(),
		}).Warn("Compression failed, keeping uncompressed dump")
		return path
	}

	w.logger.WithFields(map[string]interface{}{
		"file":     compressed,
		"ratio":    fmt.Sprintf("%.2f", stats.CompressionRatio),
		"duration": stats.Duration.String(),
	}).Debug("Dump compressed")
	return compressed
}

func (w *Writer) replicate(ctx context.Context, artifact *Artifact) {
	if w.mirror == nil {
		return
	}
	location, err := w.mirror.Upload(ctx, artifact.Filepath, artifact.Filename)
	if err != nil {
		w.logger.WithFields(map[string]interface{}{
			"backup_id": artifact.ID,
			"mirror":    w.mirror.Name(),
			"error":     err.Error(),
		}).Warn("Failed to mirror backup")
		return
	}
	w.logger.WithFields(map[string]interface{}{
		"backup_id": artifact.ID,
		"location":  location,
	}).Info("Backup mirrored")
}

func (w *Writer) label(label string) string {
	if strings.TrimSpace(label) == "" {
		return w.options.DefaultLabel
	}
	return label
}

var labelUnsafe = regexp.MustCompile(`[/\\\s]+`)

// DumpFileName builds `{label}_{type}_{YYYYMMDD_HHMMSS}.sql` with path
// separators and whitespace in label replaced by underscores
func DumpFileName(label string, backupType BackupType, at time.Time) string {
	label = labelUnsafe.ReplaceAllString(strings.TrimSpace(label), "_")
	if label == "" {
		label = "backup"
	}
	return fmt.Sprintf("%s_%s_%s.sql", label, backupType, at.Format(fileTimestampLayout))
}

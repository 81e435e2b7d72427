package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mysql-dump-manager/internal/logging"
)

// CatalogTable is the name of the table holding artifact metadata
const CatalogTable = "backups"

const catalogSchema = "CREATE TABLE IF NOT EXISTS `backups` (" +
	"`id` INT NOT NULL AUTO_INCREMENT, " +
	"`filename` VARCHAR(255) NOT NULL, " +
	"`filepath` VARCHAR(1024) NOT NULL, " +
	"`size_mb` DOUBLE NOT NULL DEFAULT 0, " +
	"`tables_included` TEXT NULL, " +
	"`backup_type` VARCHAR(20) NOT NULL DEFAULT 'full', " +
	"`status` VARCHAR(20) NOT NULL DEFAULT 'completed', " +
	"`created_at` DATETIME NOT NULL, " +
	"PRIMARY KEY (`id`), " +
	"KEY `idx_backups_created_at` (`created_at`)" +
	") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"

const catalogColumns = "id, filename, filepath, size_mb, tables_included, backup_type, status, created_at"

// Catalog stores artifact metadata in the `backups` table of the dumped
// database. Ids come from AUTO_INCREMENT so concurrent creates never collide.
type Catalog struct {
	db     *sql.DB
	store  *FileStore
	mirror ArtifactMirror
	logger *logging.Logger
	now    func() time.Time
}

// NewCatalog creates a catalog over db. store may be nil, in which case
// deletes only touch the file path recorded in the row.
func NewCatalog(db *sql.DB, store *FileStore, logger *logging.Logger) *Catalog {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Catalog{
		db:     db,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetMirror makes Delete also remove the mirrored copy of the artifact file
func (c *Catalog) SetMirror(mirror ArtifactMirror) {
	c.mirror = mirror
}

// EnsureSchema creates the catalog table when missing
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, catalogSchema); err != nil {
		return NewDatabaseError("failed to create backups table", err)
	}
	return nil
}

// Create inserts the artifact row and sets artifact.ID
func (c *Catalog) Create(ctx context.Context, artifact *Artifact) (int64, error) {
	if artifact == nil {
		return 0, NewValidationError("artifact is required", nil)
	}
	if artifact.Filename == "" || artifact.Filepath == "" {
		return 0, NewValidationError("artifact filename and filepath are required", nil)
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = c.now()
	}
	if artifact.BackupType == "" {
		artifact.BackupType = BackupTypeFull
	}
	if artifact.Status == "" {
		artifact.Status = BackupStatusCompleted
	}

	result, err := c.db.ExecContext(ctx,
		"INSERT INTO backups (filename, filepath, size_mb, tables_included, backup_type, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		artifact.Filename,
		artifact.Filepath,
		artifact.SizeMB,
		artifact.TablesIncluded,
		string(artifact.BackupType),
		string(artifact.Status),
		artifact.CreatedAt,
	)
	if err != nil {
		return 0, NewDatabaseError("failed to register backup", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, NewDatabaseError("failed to read backup id", err)
	}
	artifact.ID = id

	c.logger.WithFields(map[string]interface{}{
		"backup_id": id,
		"filename":  artifact.Filename,
		"type":      artifact.BackupType,
		"size_mb":   artifact.SizeMB,
	}).Info("Backup registered")

	return id, nil
}

// List returns every artifact, newest first
func (c *Catalog) List(ctx context.Context) ([]*Artifact, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT "+catalogColumns+" FROM backups ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, NewDatabaseError("failed to list backups", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("failed to iterate backups", err)
	}
	return artifacts, nil
}

// Get returns the artifact with id or a NotFound error
func (c *Catalog) Get(ctx context.Context, id int64) (*Artifact, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+catalogColumns+" FROM backups WHERE id = ?", id)
	artifact, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewNotFoundError(fmt.Sprintf("backup %d not found", id), nil).WithContext("backup_id", id)
		}
		return nil, err
	}
	return artifact, nil
}

// Delete removes the artifact row and its file. File and mirror removal are
// best-effort. Returns false only when no row existed.
func (c *Catalog) Delete(ctx context.Context, id int64) (bool, error) {
	artifact, err := c.Get(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	c.removeFile(ctx, artifact)

	result, err := c.db.ExecContext(ctx, "DELETE FROM backups WHERE id = ?", id)
	if err != nil {
		return false, NewDatabaseError(fmt.Sprintf("failed to delete backup %d", id), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, NewDatabaseError("failed to read deleted rows", err)
	}
	if affected == 0 {
		return false, nil
	}

	c.logger.WithFields(map[string]interface{}{
		"backup_id": id,
		"filename":  artifact.Filename,
	}).Info("Backup deleted")
	return true, nil
}

func (c *Catalog) removeFile(ctx context.Context, artifact *Artifact) {
	remove := removeIfExists
	if c.store != nil {
		remove = c.store.Remove
	}
	if err := remove(artifact.Filepath); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"backup_id": artifact.ID,
			"filepath":  artifact.Filepath,
			"error":     err.Error(),
		}).Warn("Failed to remove backup file")
	}

	if c.mirror != nil {
		if err := c.mirror.Delete(ctx, artifact.Filename); err != nil {
			c.logger.WithFields(map[string]interface{}{
				"backup_id": artifact.ID,
				"mirror":    c.mirror.Name(),
				"error":     err.Error(),
			}).Warn("Failed to remove mirrored backup")
		}
	}
}

// Retain deletes every artifact except the keep most recent ones and
// returns how many were deleted
func (c *Catalog) Retain(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		return 0, NewValidationError("retention must keep at least one backup", nil)
	}

	artifacts, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(artifacts) <= keep {
		return 0, nil
	}

	deleted := 0
	var errs []error
	for _, artifact := range artifacts[keep:] {
		ok, err := c.Delete(ctx, artifact.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			deleted++
		}
	}

	if deleted > 0 {
		c.logger.Infof("Retention removed %d backups, kept %d", deleted, keep)
	}
	return deleted, errors.Join(errs...)
}

// Stats summarizes the catalog
func (c *Catalog) Stats(ctx context.Context) (*CatalogStats, error) {
	var (
		stats CatalogStats
		last  sql.NullTime
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(size_mb), 0), "+
			"COALESCE(SUM(backup_type = 'full'), 0), COALESCE(SUM(backup_type = 'partial'), 0), "+
			"MAX(created_at) FROM backups",
	).Scan(&stats.TotalBackups, &stats.TotalSizeMB, &stats.FullBackups, &stats.PartialBackups, &last)
	if err != nil {
		return nil, NewDatabaseError("failed to compute backup statistics", err)
	}

	stats.TotalSizeMB = roundTwo(stats.TotalSizeMB)
	if last.Valid {
		t := last.Time
		stats.LastBackup = &t
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	var (
		artifact   Artifact
		backupType string
		status     string
	)
	err := row.Scan(
		&artifact.ID,
		&artifact.Filename,
		&artifact.Filepath,
		&artifact.SizeMB,
		&artifact.TablesIncluded,
		&backupType,
		&status,
		&artifact.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, NewDatabaseError("failed to read backup row", err)
	}
	artifact.BackupType = BackupType(backupType)
	artifact.Status = BackupStatus(status)
	return &artifact, nil
}

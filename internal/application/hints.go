package application

import (
	"mysql-dump-manager/internal/backup"
)

// TroubleshootingHints suggests next steps for an error returned by one of
// the caller operations
func TroubleshootingHints(err error) []string {
	switch backup.ErrorType(err) {
	case backup.BackupErrorTypeDatabase:
		return []string{
			"Check that the database server is running",
			"Verify the host, port, username and password",
			"Ensure the user can read every table and create the backups table",
		}
	case backup.BackupErrorTypeNotFound:
		return []string{
			"Run 'dump list' to see the available backup ids",
			"The artifact file may have been removed from the backup directory",
		}
	case backup.BackupErrorTypeValidation:
		return []string{
			"Review the command line arguments",
			"Restores need --confirm or an interactive confirmation",
		}
	case backup.BackupErrorTypeCorruption, backup.BackupErrorTypeCompression:
		return []string{
			"The artifact file could not be read as a SQL script",
			"Re-import the original dump file or pick another backup",
		}
	case backup.BackupErrorTypeReplay:
		return []string{
			"The database was left as it was before the failed statements",
			"A pre-restore safety backup was taken; restore it to undo partial changes",
			"Run with --log-level debug to see the failing statement",
		}
	case backup.BackupErrorTypeConflict:
		return []string{
			"Another restore of this backup is running; wait for it to finish",
		}
	case backup.BackupErrorTypeTimeout:
		return []string{
			"Increase restore.timeout in the configuration",
			"Check database server load and lock waits",
		}
	case backup.BackupErrorTypeStorage:
		return []string{
			"Check that the backup directory exists and is writable",
			"Check free disk space",
		}
	}
	return nil
}

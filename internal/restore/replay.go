package restore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "mysql-dump-manager/internal/errors"
	"mysql-dump-manager/internal/logging"
)

const (
	disableForeignKeyChecks = "SET FOREIGN_KEY_CHECKS=0"
	enableForeignKeyChecks  = "SET FOREIGN_KEY_CHECKS=1"
	pragmaResetTimeout      = 10 * time.Second
)

// StatementError is the first statement that failed during a replay
type StatementError struct {
	Index int
	Stmt  Statement
	Err   error
}

func (e *StatementError) Error() string {
	if e.Stmt.Table != "" {
		return fmt.Sprintf("statement %d (%s on %s) failed: %v", e.Index+1, e.Stmt.Kind, e.Stmt.Table, e.Err)
	}
	return fmt.Sprintf("statement %d (%s) failed: %v", e.Index+1, e.Stmt.Kind, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// IsForeignKeyViolation reports whether the statement failed a foreign key check
func (e *StatementError) IsForeignKeyViolation() bool {
	return apperrors.IsForeignKeyViolation(e.Err)
}

// Replayer executes statements on one dedicated connection inside a single
// transaction with foreign key checks disabled. Checks are re-enabled on the
// connection whether the replay succeeds or not.
type Replayer struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewReplayer creates a replayer over db
func NewReplayer(db *sql.DB, logger *logging.Logger) *Replayer {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Replayer{db: db, logger: logger}
}

// Replay runs statements in order and returns how many succeeded. The
// returned error is a *StatementError when a statement failed.
func (r *Replayer) Replay(ctx context.Context, statements []Statement) (executed int, err error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, disableForeignKeyChecks); err != nil {
		return 0, fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	defer func() {
		resetCtx, cancel := context.WithTimeout(context.Background(), pragmaResetTimeout)
		defer cancel()
		if _, resetErr := conn.ExecContext(resetCtx, enableForeignKeyChecks); resetErr != nil {
			r.logger.Warnf("Failed to re-enable foreign key checks: %v", resetErr)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, stmt := range statements {
		start := time.Now()
		_, execErr := tx.ExecContext(ctx, stmt.SQL)
		if execErr != nil {
			r.logger.LogSQLExecution(stmt.SQL, time.Since(start), 0, execErr)
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				r.logger.Warnf("Rollback failed: %v", rbErr)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return executed, ctxErr
			}
			return executed, &StatementError{Index: i, Stmt: stmt, Err: execErr}
		}
		executed++
	}

	if err := tx.Commit(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return executed, ctxErr
		}
		return executed, fmt.Errorf("failed to commit restore: %w", err)
	}
	return executed, nil
}

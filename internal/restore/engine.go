package restore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/logging"
	"mysql-dump-manager/internal/schema"
)

// ArtifactLookup resolves catalog entries
type ArtifactLookup interface {
	Get(ctx context.Context, id int64) (*backup.Artifact, error)
}

// SchemaInspector reads live schema facts the engine needs
type SchemaInspector interface {
	ColumnSource
	CountRows(ctx context.Context, table string) (int64, error)
}

// Engine restores catalogued dumps into the live database. Restores of the
// same artifact are rejected while one is in flight and replays of different
// artifacts run one at a time.
type Engine struct {
	catalog     ArtifactLookup
	store       *backup.FileStore
	inspector   SchemaInspector
	db          *sql.DB
	dumper      backup.Dumper
	replayer    *Replayer
	compression *backup.CompressionManager
	options     Options
	logger      *logging.Logger

	mu       sync.Mutex
	inFlight map[int64]bool
	replayMu sync.Mutex
}

// NewEngine creates a restore engine. dumper may be nil, which disables the
// pre-restore safety dump.
func NewEngine(db *sql.DB, catalog ArtifactLookup, store *backup.FileStore, inspector SchemaInspector, dumper backup.Dumper, options Options, logger *logging.Logger) *Engine {
	options.SetDefaults()
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Engine{
		catalog:     catalog,
		store:       store,
		inspector:   inspector,
		db:          db,
		dumper:      dumper,
		replayer:    NewReplayer(db, logger),
		compression: backup.NewCompressionManager(),
		options:     options,
		logger:      logger,
		inFlight:    make(map[int64]bool),
	}
}

// Options returns the effective options
func (e *Engine) Options() Options {
	return e.options
}

// Restore replays artifact id over the live database. A nil error means the
// result is success, partial_success or structure_only. When the replay
// itself ran but every fallback failed, both a failed result and a
// REPLAY_ERROR are returned.
func (e *Engine) Restore(ctx context.Context, id int64) (result *Result, err error) {
	if !e.acquire(id) {
		return nil, backup.NewConflictError(fmt.Sprintf("backup %d is already being restored", id), nil).WithContext("backup_id", id)
	}
	defer e.release(id)

	done := e.logger.LogOperationStart("restore", map[string]interface{}{"backup_id": id})
	defer func() { done(err) }()

	started := time.Now()
	diag := &Diagnostics{ArtifactID: id, RowCounts: make(map[string]RowCount)}
	defer func() { diag.Duration = time.Since(started) }()

	statements, err := e.prepare(ctx, id, diag)
	if err != nil {
		return nil, err
	}

	e.replayMu.Lock()
	defer e.replayMu.Unlock()

	e.safetyDump(ctx, diag)

	before := e.countRows(ctx, diag)
	diag.MigrationBefore = e.migrationVersion(ctx)

	replayCtx, cancel := context.WithTimeout(ctx, e.options.Timeout)
	defer cancel()
	result, err = e.replay(replayCtx, statements, diag)

	verifyStarted := time.Now()
	after := e.countRows(ctx, diag)
	for _, table := range e.options.CountTables {
		diag.RowCounts[table] = RowCount{Before: before[table], After: after[table]}
	}
	diag.MigrationAfter = e.migrationVersion(ctx)
	diag.stage(StageVerify, fmt.Sprintf("migration version %q", diag.MigrationAfter), verifyStarted)

	result.Diagnostics = diag
	result.Message = e.message(result, diag)
	e.logger.WithFields(map[string]interface{}{
		"backup_id": id,
		"outcome":   result.Outcome,
		"executed":  diag.Executed,
		"fallback":  diag.Fallback,
	}).Info("Restore finished")
	return result, err
}

// prepare runs every stage up to the replay and returns the statements to execute
func (e *Engine) prepare(ctx context.Context, id int64, diag *Diagnostics) ([]Statement, error) {
	t := time.Now()
	artifact, err := e.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, err := e.store.ReadFile(artifact.Filepath)
	if err != nil {
		return nil, err
	}
	diag.Filename = artifact.Filename
	diag.stage(StageResolve, artifact.Filepath, t)
	e.logger.LogRestoreStage(id, StageResolve, artifact.Filename)

	t = time.Now()
	plain, algorithm, err := e.compression.DecompressAuto(raw, artifact.Filename)
	if err != nil {
		if backup.ErrorType(err) == "" {
			err = backup.NewCorruptionError(fmt.Sprintf("backup %d cannot be decompressed", id), err)
		}
		return nil, err
	}
	diag.Compression = string(algorithm)
	diag.stage(StageDecompress, fmt.Sprintf("%s, %d bytes", algorithm, len(plain)), t)

	t = time.Now()
	text, encoding := DecodeScript(plain)
	text, fixes := FixMojibake(text)
	diag.Encoding = encoding
	for _, f := range fixes {
		diag.Repairs = append(diag.Repairs, "mojibake "+f)
	}
	if encoding == EncodingLossy {
		diag.warn("script is not valid in any supported encoding; undecodable bytes were replaced")
	}
	diag.stage(StageDecode, encoding, t)

	t = time.Now()
	statements := SplitScript(text)
	if len(statements) == 0 {
		return nil, backup.NewCorruptionError(fmt.Sprintf("backup %d contains no SQL statements", id), nil)
	}
	diag.stage(StageSplit, fmt.Sprintf("%d statements", len(statements)), t)

	t = time.Now()
	statements, drift, err := NewDriftCorrector(e.inspector, e.options.aliases()).Correct(ctx, statements)
	if err != nil {
		return nil, backup.NewTimeoutError("restore cancelled while reading live columns", err)
	}
	diag.Drift = drift
	for _, c := range drift.Renamed {
		diag.Repairs = append(diag.Repairs, "column "+c.String())
	}
	for _, c := range drift.Dropped {
		diag.Repairs = append(diag.Repairs, "column "+c.String())
	}
	diag.Warnings = append(diag.Warnings, drift.Warnings...)
	diag.stage(StageDrift, fmt.Sprintf("%d renamed, %d dropped", len(drift.Renamed), len(drift.Dropped)), t)

	t = time.Now()
	statements, repairs := NewRepairer(e.options.MigrationTable).
		ForGeneratedScript(IsGeneratedScript(text)).
		Repair(statements)
	diag.Repairs = append(diag.Repairs, repairs.Summary()...)
	diag.Statements = len(statements)
	diag.stage(StageRepair, strings.Join(repairs.Summary(), "; "), t)

	if len(statements) == 0 {
		return nil, backup.NewCorruptionError(fmt.Sprintf("backup %d has nothing to replay", id), nil)
	}
	return statements, nil
}

// safetyDump snapshots the live database before it is touched. A failed
// safety dump is recorded and the restore continues.
func (e *Engine) safetyDump(ctx context.Context, diag *Diagnostics) {
	if e.dumper == nil || e.options.DisableSafetyDump {
		return
	}
	t := time.Now()
	artifact, err := e.dumper.Dump(ctx, backup.DumpRequest{
		Label:         SafetyDumpLabel,
		Exclude:       []string{e.options.MigrationTable},
		SkipRetention: true,
	})
	if err != nil {
		diag.warn(fmt.Sprintf("safety dump failed: %v", err))
		diag.stage(StageSafetyDump, "failed", t)
		return
	}
	id := artifact.ID
	diag.SafetyArtifactID = &id
	diag.stage(StageSafetyDump, artifact.Filename, t)
	e.logger.LogRestoreStage(diag.ArtifactID, StageSafetyDump, fmt.Sprintf("safety dump %d created", id))
}

// replay runs the fallback ladder: the full script, then the script without
// data for the tables implicated in the failure, then structure only
func (e *Engine) replay(ctx context.Context, statements []Statement, diag *Diagnostics) (*Result, error) {
	t := time.Now()
	executed, err := e.replayer.Replay(ctx, statements)
	diag.Executed = executed
	diag.stage(StageReplay, fmt.Sprintf("%d of %d statements", executed, len(statements)), t)
	if err == nil {
		return &Result{Success: true, Outcome: OutcomeSuccess}, nil
	}
	if terminal := e.terminal(ctx, err, diag); terminal != nil {
		return &Result{Outcome: OutcomeFailed}, terminal
	}

	if implicated := implicatedTables(err); len(implicated) > 0 {
		diag.ImplicatedTables = implicated
		reduced := withoutData(statements, implicated)

		t = time.Now()
		executed, err = e.replayer.Replay(ctx, reduced)
		diag.stage(StageFallback, fmt.Sprintf("%s: skipped data of %s", FallbackSkipData, strings.Join(implicated, ", ")), t)
		if err == nil {
			diag.Executed = executed
			diag.Fallback = FallbackSkipData
			return &Result{Success: true, Outcome: OutcomePartialSuccess}, nil
		}
		if terminal := e.terminal(ctx, err, diag); terminal != nil {
			return &Result{Outcome: OutcomeFailed}, terminal
		}
	}

	structure := structureOnly(statements)
	if len(structure) > 0 {
		t = time.Now()
		executed, err = e.replayer.Replay(ctx, structure)
		diag.stage(StageFallback, fmt.Sprintf("%s: %d statements", FallbackStructureOnly, len(structure)), t)
		if err == nil {
			diag.Executed = executed
			diag.Fallback = FallbackStructureOnly
			diag.warn("table data was not restored; only structure statements were replayed")
			return &Result{Success: true, Outcome: OutcomeStructureOnly}, nil
		}
		if terminal := e.terminal(ctx, err, diag); terminal != nil {
			return &Result{Outcome: OutcomeFailed}, terminal
		}
	}

	diag.Fallback = FallbackExhausted
	return &Result{Outcome: OutcomeFailed}, backup.NewReplayError(
		fmt.Sprintf("backup %d could not be restored", diag.ArtifactID), err).WithContext("backup_id", diag.ArtifactID)
}

// terminal records err and returns the error that ends the ladder, if any
func (e *Engine) terminal(ctx context.Context, err error, diag *Diagnostics) error {
	diag.ReplayErrors = append(diag.ReplayErrors, err.Error())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return backup.NewTimeoutError(fmt.Sprintf("restore exceeded %s", e.options.Timeout), err).WithContext("backup_id", diag.ArtifactID)
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return backup.NewTimeoutError("restore cancelled", err).WithContext("backup_id", diag.ArtifactID)
	}

	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		e.logger.WithFields(map[string]interface{}{
			"backup_id":   diag.ArtifactID,
			"table":       stmtErr.Stmt.Table,
			"kind":        stmtErr.Stmt.Kind.String(),
			"foreign_key": stmtErr.IsForeignKeyViolation(),
			"error":       stmtErr.Err.Error(),
		}).Warn("Replay failed")
		return nil
	}
	// Connection-level failures leave nothing to fall back to
	return backup.NewReplayError("replay could not start", err).WithContext("backup_id", diag.ArtifactID)
}

func (e *Engine) countRows(ctx context.Context, diag *Diagnostics) map[string]*int64 {
	counts := make(map[string]*int64, len(e.options.CountTables))
	for _, table := range e.options.CountTables {
		n, err := e.inspector.CountRows(ctx, table)
		if err != nil {
			diag.warn(fmt.Sprintf("could not count rows of %s: %v", table, err))
			continue
		}
		counts[table] = &n
	}
	return counts
}

// migrationVersion reads the current schema migration marker; "" when absent
func (e *Engine) migrationVersion(ctx context.Context) string {
	if e.options.MigrationTable == "" {
		return ""
	}
	query := fmt.Sprintf("SELECT %s FROM %s LIMIT 1",
		schema.QuoteIdentifier(e.options.MigrationVersionColumn), schema.QuoteIdentifier(e.options.MigrationTable))

	var version sql.NullString
	if err := e.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			e.logger.Debugf("Could not read migration version: %v", err)
		}
		return ""
	}
	return version.String
}

func (e *Engine) message(result *Result, diag *Diagnostics) string {
	var msg string
	switch result.Outcome {
	case OutcomeSuccess:
		msg = "Backup restored successfully"
	case OutcomePartialSuccess:
		msg = fmt.Sprintf("Backup restored without the data of %s", strings.Join(diag.ImplicatedTables, ", "))
	case OutcomeStructureOnly:
		msg = "Only the table structure could be restored; no data was loaded"
	default:
		msg = "Restore failed"
		if n := len(diag.ReplayErrors); n > 0 {
			msg += ": " + diag.ReplayErrors[n-1]
		}
		if diag.SafetyArtifactID != nil {
			msg += fmt.Sprintf(". The pre-restore state is saved as backup %d", *diag.SafetyArtifactID)
		}
	}

	tables := make([]string, 0, len(diag.RowCounts))
	for table := range diag.RowCounts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		c := diag.RowCounts[table]
		if added := c.Added(); added != nil {
			msg += fmt.Sprintf(". %s: %d before, %d after, %+d", table, *c.Before, *c.After, *added)
		}
	}
	if diag.MigrationAfter != "" {
		msg += ". Migration version: " + diag.MigrationAfter
	}
	return msg
}

func (e *Engine) acquire(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[id] {
		return false
	}
	e.inFlight[id] = true
	return true
}

func (e *Engine) release(id int64) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

// implicatedTables returns the table whose data statement caused err
func implicatedTables(err error) []string {
	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) {
		return nil
	}
	if stmtErr.Stmt.Kind != KindData || stmtErr.Stmt.Table == "" {
		return nil
	}
	return []string{stmtErr.Stmt.Table}
}

func withoutData(statements []Statement, tables []string) []Statement {
	skip := make(map[string]bool, len(tables))
	for _, t := range tables {
		skip[strings.ToLower(t)] = true
	}
	out := make([]Statement, 0, len(statements))
	for _, s := range statements {
		if s.Kind == KindData && skip[strings.ToLower(s.Table)] {
			continue
		}
		out = append(out, s)
	}
	return out
}

func structureOnly(statements []Statement) []Statement {
	out := make([]Statement, 0, len(statements))
	for _, s := range statements {
		if s.Kind != KindData {
			out = append(out, s)
		}
	}
	return out
}

package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Introspector reads table metadata from a live MySQL schema. It never
// mutates data.
type Introspector struct {
	db           *sql.DB
	schemaName   string
	queryTimeout time.Duration
}

// NewIntrospector creates an introspector for schemaName
func NewIntrospector(db *sql.DB, schemaName string) *Introspector {
	return NewIntrospectorWithTimeout(db, schemaName, 30*time.Second)
}

// NewIntrospectorWithTimeout creates an introspector with a custom per-query timeout
func NewIntrospectorWithTimeout(db *sql.DB, schemaName string, timeout time.Duration) *Introspector {
	return &Introspector{
		db:           db,
		schemaName:   schemaName,
		queryTimeout: timeout,
	}
}

// SchemaName returns the schema this introspector reads
func (i *Introspector) SchemaName() string {
	return i.schemaName
}

// ListTables returns the base tables of the schema ordered by name
func (i *Introspector) ListTables(ctx context.Context) ([]string, error) {
	if err := i.check(); err != nil {
		return nil, err
	}

	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`

	ctx, cancel := context.WithTimeout(ctx, i.queryTimeout)
	defer cancel()

	rows, err := i.db.QueryContext(ctx, query, i.schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table rows: %w", err)
	}

	return tables, nil
}

// TableDefinition returns the CREATE TABLE statement reproducing table
func (i *Introspector) TableDefinition(ctx context.Context, table string) (string, error) {
	if err := i.check(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, i.queryTimeout)
	defer cancel()

	var name, ddl string
	err := i.db.QueryRowContext(ctx, "SHOW CREATE TABLE "+QuoteIdentifier(table)).Scan(&name, &ddl)
	if err != nil {
		return "", fmt.Errorf("failed to get definition of table %s: %w", table, err)
	}
	return ddl, nil
}

// TableColumns returns the current column names of table in ordinal order
func (i *Introspector) TableColumns(ctx context.Context, table string) ([]string, error) {
	if err := i.check(); err != nil {
		return nil, err
	}

	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	ctx, cancel := context.WithTimeout(ctx, i.queryTimeout)
	defer cancel()

	rows, err := i.db.QueryContext(ctx, query, i.schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column of table %s: %w", table, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of table %s: %w", table, err)
	}

	return columns, nil
}

// CountRows returns the exact number of rows in table
func (i *Introspector) CountRows(ctx context.Context, table string) (int64, error) {
	if err := i.check(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, i.queryTimeout)
	defer cancel()

	var count int64
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+QuoteIdentifier(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows of table %s: %w", table, err)
	}
	return count, nil
}

func (i *Introspector) check() error {
	if i.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if i.schemaName == "" {
		return fmt.Errorf("schema name cannot be empty")
	}
	return nil
}

// QuoteIdentifier wraps name in backticks, doubling any embedded backtick
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

package backup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"mysql-dump-manager/internal/logging"
	"mysql-dump-manager/internal/schema"
)

// TimestampLayout is the fixed-second format temporal values are dumped with
const TimestampLayout = "2006-01-02 15:04:05"

// ZeroTimestamp is how MySQL spells a zero DATETIME, which the driver
// scans into the zero time.Time
const ZeroTimestamp = "0000-00-00 00:00:00"

// DefaultBatchSize is the number of rows per multi-row INSERT
const DefaultBatchSize = 100

// Serializer streams a table's rows as batched INSERT statements
type Serializer struct {
	db        *sql.DB
	batchSize int
	logger    *logging.Logger
}

// NewSerializer creates a serializer reading from db
func NewSerializer(db *sql.DB, batchSize int, logger *logging.Logger) *Serializer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Serializer{db: db, batchSize: batchSize, logger: logger}
}

// SerializeTable emits one INSERT statement per batch of rows of table. A
// read failure replaces the in-progress batch with a comment and returns nil;
// only emit errors are returned.
func (s *Serializer) SerializeTable(ctx context.Context, table string, emit func(stmt string) error) error {
	start := time.Now()
	var rowCount int64
	statements := 0

	readFailed := func(err error) error {
		s.logger.LogTableDump(table, rowCount, statements, time.Since(start), err)
		return emit(fmt.Sprintf("-- Error reading data from table %s: %s", table, oneLine(err.Error())))
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+schema.QuoteIdentifier(table))
	if err != nil {
		return readFailed(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return readFailed(err)
	}
	kinds := make([]columnKind, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			kinds[i] = classifyColumn(ct.DatabaseTypeName())
		}
	}

	prefix := insertPrefix(table, columns)
	batch := make([]string, 0, s.batchSize)
	values := make([]interface{}, len(columns))
	scanArgs := make([]interface{}, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return readFailed(err)
		}

		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = formatLiteral(v, kinds[i])
		}
		batch = append(batch, "("+strings.Join(literals, ", ")+")")
		rowCount++

		if len(batch) >= s.batchSize {
			if err := emit(buildInsert(prefix, batch)); err != nil {
				return err
			}
			statements++
			batch = batch[:0]
		}
	}
	if err := rows.Err(); err != nil {
		return readFailed(err)
	}

	if len(batch) > 0 {
		if err := emit(buildInsert(prefix, batch)); err != nil {
			return err
		}
		statements++
	}

	if rowCount == 0 {
		if err := emit(fmt.Sprintf("-- Table %s is empty", schema.QuoteIdentifier(table))); err != nil {
			return err
		}
	}

	s.logger.LogTableDump(table, rowCount, statements, time.Since(start), nil)
	return nil
}

func insertPrefix(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = schema.QuoteIdentifier(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES\n  ", schema.QuoteIdentifier(table), strings.Join(quoted, ", "))
}

func buildInsert(prefix string, batch []string) string {
	return prefix + strings.Join(batch, ",\n  ") + ";"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type columnKind int

const (
	kindText columnKind = iota
	kindNumeric
	kindTemporal
	kindJSON
	kindBinary
)

func classifyColumn(dbType string) columnKind {
	switch strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
		"DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "YEAR":
		return kindNumeric
	case "DATETIME", "TIMESTAMP", "DATE":
		return kindTemporal
	case "JSON":
		return kindJSON
	case "BINARY", "VARBINARY", "TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return kindBinary
	}
	return kindText
}

// formatLiteral renders a scanned column value as a SQL literal
func formatLiteral(v interface{}, kind columnKind) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		if val.IsZero() {
			return QuoteString(ZeroTimestamp)
		}
		return QuoteString(val.Format(TimestampLayout))
	case []byte:
		return formatRaw(val, kind)
	case string:
		return formatRaw([]byte(val), kind)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return QuoteString(fmt.Sprint(val))
		}
		return QuoteString(string(data))
	}
	return QuoteString(fmt.Sprint(v))
}

func formatRaw(raw []byte, kind columnKind) string {
	switch kind {
	case kindNumeric:
		if isNumericLiteral(raw) {
			return string(raw)
		}
	case kindTemporal:
		s := string(raw)
		if len(s) > len(TimestampLayout) && s[len(TimestampLayout)] == '.' {
			s = s[:len(TimestampLayout)]
		}
		return QuoteString(s)
	case kindJSON:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return QuoteString(buf.String())
		}
	case kindBinary:
		if !utf8.Valid(raw) {
			return "0x" + hex.EncodeToString(raw)
		}
	}
	return QuoteString(string(raw))
}

func isNumericLiteral(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(string(raw), 64)
	return err == nil
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

// QuoteString quotes s as a MySQL string literal. Quotes are doubled and
// backslashes escaped so the value replays byte-identically.
func QuoteString(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}

package restore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"mysql-dump-manager/internal/backup"
)

var (
	plainInsertPattern = regexp.MustCompile(`(?is)^INSERT\s+INTO\s`)
	createTablePattern = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+`)
	ifNotExistsPattern = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+IF\s+NOT\s+EXISTS\s`)
	dropTablePattern   = regexp.MustCompile(`(?is)^DROP\s+TABLE\s`)
)

// RepairReport counts the rewrites applied to a script
type RepairReport struct {
	Upserts        int `json:"upserts" yaml:"upserts"`
	IgnoredInserts int `json:"ignored_inserts" yaml:"ignored_inserts"`
	CreateIfAbsent int `json:"create_if_absent" yaml:"create_if_absent"`
	DroppedDrops   int `json:"dropped_drops" yaml:"dropped_drops"`
	DroppedPragmas int `json:"dropped_pragmas" yaml:"dropped_pragmas"`
	JSONLiterals   int `json:"json_literals" yaml:"json_literals"`
}

// Summary lists the non-zero counters
func (r *RepairReport) Summary() []string {
	var out []string
	add := func(n int, what string) {
		if n > 0 {
			out = append(out, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(r.Upserts, "inserts rewritten to REPLACE")
	add(r.IgnoredInserts, "migration inserts rewritten to INSERT IGNORE")
	add(r.CreateIfAbsent, "CREATE TABLE made conditional")
	add(r.DroppedDrops, "DROP TABLE statements removed")
	add(r.DroppedPragmas, "session control statements removed")
	add(r.JSONLiterals, "JSON literals re-escaped")
	return out
}

// Repairer makes a script safe to replay over a live database: inserts
// become upserts, structure statements never destroy existing tables and
// transaction or lock control is left to the replayer.
type Repairer struct {
	migrationTable string
	generated      bool
}

// NewRepairer creates a repairer that treats migrationTable as the schema
// migration bookkeeping table
func NewRepairer(migrationTable string) *Repairer {
	return &Repairer{migrationTable: migrationTable}
}

// ForGeneratedScript marks the input as written by the dump writer. Its
// literals are escaped exactly, so JSON-looking values are left untouched.
func (r *Repairer) ForGeneratedScript(generated bool) *Repairer {
	r.generated = generated
	return r
}

// IsGeneratedScript reports whether text opens with the dump writer header
func IsGeneratedScript(text string) bool {
	text = strings.TrimLeft(strings.TrimPrefix(text, "\ufeff"), " \t\r\n")
	return strings.HasPrefix(text, backup.MarkerGenerated)
}

// Repair rewrites statements and reports what changed
func (r *Repairer) Repair(statements []Statement) ([]Statement, *RepairReport) {
	report := &RepairReport{}
	out := make([]Statement, 0, len(statements))

	for _, stmt := range statements {
		switch stmt.Kind {
		case KindControl:
			report.DroppedPragmas++
			continue
		case KindSession:
			if stmt.IsForeignKeyPragma() {
				report.DroppedPragmas++
				continue
			}
		case KindStructure:
			if dropTablePattern.MatchString(stmt.SQL) {
				report.DroppedDrops++
				continue
			}
			if createTablePattern.MatchString(stmt.SQL) && !ifNotExistsPattern.MatchString(stmt.SQL) {
				stmt.SQL = createTablePattern.ReplaceAllString(stmt.SQL, "CREATE TABLE IF NOT EXISTS ")
				report.CreateIfAbsent++
			}
		case KindData:
			if plainInsertPattern.MatchString(stmt.SQL) {
				if r.isMigrationTable(stmt.Table) {
					stmt.SQL = plainInsertPattern.ReplaceAllString(stmt.SQL, "INSERT IGNORE INTO ")
					report.IgnoredInserts++
				} else {
					stmt.SQL = plainInsertPattern.ReplaceAllString(stmt.SQL, "REPLACE INTO ")
					report.Upserts++
				}
			}
			if !r.generated {
				var fixed int
				stmt.SQL, fixed = rewriteStringLiterals(stmt.SQL, repairJSONLiteral)
				report.JSONLiterals += fixed
			}
		}
		out = append(out, stmt)
	}

	return out, report
}

func (r *Repairer) isMigrationTable(table string) bool {
	return r.migrationTable != "" && strings.EqualFold(table, r.migrationTable)
}

// repairJSONLiteral re-escapes a literal holding a JSON document whose
// backslashes were written unescaped. The stored value must parse as JSON
// after the rewrite or the literal is left alone.
func repairJSONLiteral(body string) (string, bool) {
	trimmed := strings.TrimLeft(body, " \t\r\n")
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return "", false
	}
	if !strings.Contains(body, `\`) {
		return "", false
	}

	stored := unescapeLiteral(body)
	if json.Valid([]byte(stored)) {
		return "", false
	}

	verbatim := strings.ReplaceAll(body, "''", "'")
	for _, candidate := range []string{verbatim, escapeLoneBackslashes(stored), escapeLoneBackslashes(verbatim)} {
		if json.Valid([]byte(candidate)) {
			quoted := backup.QuoteString(candidate)
			return quoted[1 : len(quoted)-1], true
		}
	}
	return "", false
}

// escapeLoneBackslashes doubles backslashes that do not start a JSON escape
func escapeLoneBackslashes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) && strings.IndexByte(`"\/bfnrtu`, s[i+1]) >= 0 {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

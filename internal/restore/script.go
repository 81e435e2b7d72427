package restore

import (
	"regexp"
	"strings"
)

// StatementKind classifies a replayable statement
type StatementKind int

const (
	KindOther StatementKind = iota
	KindStructure
	KindData
	KindSession
	KindControl
)

func (k StatementKind) String() string {
	switch k {
	case KindStructure:
		return "structure"
	case KindData:
		return "data"
	case KindSession:
		return "session"
	case KindControl:
		return "control"
	}
	return "other"
}

// Statement is one SQL statement of a dump script, without its terminator
type Statement struct {
	SQL   string
	Kind  StatementKind
	Table string
}

var (
	structurePattern = regexp.MustCompile("(?is)^(?:CREATE|DROP|ALTER|TRUNCATE)\\s+(?:TEMPORARY\\s+)?TABLE\\s+(?:IF\\s+(?:NOT\\s+)?EXISTS\\s+)?((?:`[^`]+`|[A-Za-z0-9_$]+)(?:\\.(?:`[^`]+`|[A-Za-z0-9_$]+))?)")
	dataPattern      = regexp.MustCompile("(?is)^(?:INSERT(?:\\s+(?:LOW_PRIORITY|DELAYED|HIGH_PRIORITY|IGNORE))*|REPLACE(?:\\s+(?:LOW_PRIORITY|DELAYED))?)\\s+(?:INTO\\s+)?((?:`[^`]+`|[A-Za-z0-9_$]+)(?:\\.(?:`[^`]+`|[A-Za-z0-9_$]+))?)")
	sessionPattern   = regexp.MustCompile(`(?is)^SET\s`)
	controlPattern   = regexp.MustCompile(`(?is)^(?:LOCK\s+TABLES|UNLOCK\s+TABLES|USE\s|START\s+TRANSACTION|BEGIN|COMMIT|ROLLBACK|DELIMITER\s)`)
	fkPragmaPattern  = regexp.MustCompile(`(?is)^SET\s+(?:@@(?:SESSION\.)?|SESSION\s+)?FOREIGN_KEY_CHECKS\s*=`)
)

// NewStatement classifies sql and extracts the table it touches
func NewStatement(sql string) Statement {
	sql = strings.TrimSpace(sql)
	stmt := Statement{SQL: sql, Kind: KindOther}

	switch {
	case controlPattern.MatchString(sql):
		stmt.Kind = KindControl
	case sessionPattern.MatchString(sql):
		stmt.Kind = KindSession
	default:
		if m := structurePattern.FindStringSubmatch(sql); m != nil {
			stmt.Kind = KindStructure
			stmt.Table = unquoteTable(m[1])
		} else if m := dataPattern.FindStringSubmatch(sql); m != nil {
			stmt.Kind = KindData
			stmt.Table = unquoteTable(m[1])
		}
	}
	return stmt
}

// IsForeignKeyPragma reports whether the statement toggles FOREIGN_KEY_CHECKS
func (s Statement) IsForeignKeyPragma() bool {
	return s.Kind == KindSession && fkPragmaPattern.MatchString(s.SQL)
}

// unquoteTable strips backticks and any schema qualifier
func unquoteTable(name string) string {
	if strings.HasPrefix(name, "`") {
		if end := strings.IndexByte(name[1:], '`'); end >= 0 && end+2 < len(name) && name[end+2] == '.' {
			name = name[end+3:]
		}
	} else if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, "`")
}

// SplitScript cuts a dump script into statements. Statements end at a
// semicolon outside quotes. Backslash escapes inside quoted strings are
// honoured. `--`, `#` and `/* */` comments are dropped, including MySQL
// versioned comments, which only carry session settings in dumps.
func SplitScript(text string) []Statement {
	var (
		statements []Statement
		current    strings.Builder
		quote      byte
	)

	flush := func() {
		sql := strings.TrimSpace(current.String())
		current.Reset()
		if sql != "" {
			statements = append(statements, NewStatement(sql))
		}
	}

	n := len(text)
	for i := 0; i < n; i++ {
		c := text[i]

		if quote != 0 {
			current.WriteByte(c)
			switch {
			case c == '\\' && quote != '`' && i+1 < n:
				i++
				current.WriteByte(text[i])
			case c == quote:
				if i+1 < n && text[i+1] == quote {
					i++
					current.WriteByte(text[i])
				} else {
					quote = 0
				}
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			current.WriteByte(c)
		case c == ';':
			flush()
		case c == '-' && i+1 < n && text[i+1] == '-' && (i+2 >= n || isCommentSpace(text[i+2])):
			i = skipLine(text, i)
			current.WriteByte('\n')
		case c == '#':
			i = skipLine(text, i)
			current.WriteByte('\n')
		case c == '/' && i+1 < n && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += end + 3
			}
			current.WriteByte(' ')
		default:
			current.WriteByte(c)
		}
	}
	flush()

	return statements
}

func isCommentSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// skipLine returns the index of the newline ending the line containing i
func skipLine(text string, i int) int {
	end := strings.IndexByte(text[i:], '\n')
	if end < 0 {
		return len(text)
	}
	return i + end
}

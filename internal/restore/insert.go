package restore

import (
	"strings"

	"mysql-dump-manager/internal/schema"
)

// insertStatement is an INSERT or REPLACE cut into its column list and value
// tuples. Values are kept as raw SQL expressions.
type insertStatement struct {
	head    string
	columns []string
	rows    [][]string
	tail    string
}

// parseInsert splits a data statement. It fails on statements without an
// explicit column list or with a VALUES clause it cannot tokenize.
func parseInsert(sql string) (*insertStatement, bool) {
	loc := dataPattern.FindStringSubmatchIndex(sql)
	if loc == nil {
		return nil, false
	}
	stmt := &insertStatement{head: sql[:loc[1]]}

	i := skipSpace(sql, loc[1])
	if i >= len(sql) || sql[i] != '(' {
		return nil, false
	}
	columns, next, ok := scanTuple(sql, i)
	if !ok {
		return nil, false
	}
	for _, c := range columns {
		stmt.columns = append(stmt.columns, unquoteIdentifier(c))
	}

	i = skipSpace(sql, next)
	keyword := ""
	for _, kw := range []string{"VALUES", "VALUE"} {
		if len(sql)-i >= len(kw) && strings.EqualFold(sql[i:i+len(kw)], kw) {
			keyword = kw
			break
		}
	}
	if keyword == "" {
		return nil, false
	}
	i += len(keyword)

	for {
		i = skipSpace(sql, i)
		if i >= len(sql) || sql[i] != '(' {
			return nil, false
		}
		values, next, ok := scanTuple(sql, i)
		if !ok {
			return nil, false
		}
		stmt.rows = append(stmt.rows, values)

		i = skipSpace(sql, next)
		if i < len(sql) && sql[i] == ',' {
			i++
			continue
		}
		stmt.tail = strings.TrimSpace(sql[i:])
		return stmt, true
	}
}

// String renders the statement without a terminator
func (s *insertStatement) String() string {
	var b strings.Builder
	b.WriteString(s.head)
	b.WriteString(" (")
	for i, c := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(schema.QuoteIdentifier(c))
	}
	b.WriteString(") VALUES")
	for i, row := range s.rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("\n  (")
		b.WriteString(strings.Join(row, ", "))
		b.WriteByte(')')
	}
	if s.tail != "" {
		b.WriteByte(' ')
		b.WriteString(s.tail)
	}
	return b.String()
}

// dropColumn removes column idx and its value from every tuple
func (s *insertStatement) dropColumn(idx int) {
	s.columns = append(s.columns[:idx:idx], s.columns[idx+1:]...)
	for r, row := range s.rows {
		if idx < len(row) {
			s.rows[r] = append(row[:idx:idx], row[idx+1:]...)
		}
	}
}

// scanTuple reads a parenthesized, comma separated list starting at sql[start]
// and returns the trimmed elements and the index after the closing paren
func scanTuple(sql string, start int) ([]string, int, bool) {
	var (
		elements []string
		depth    int
		quote    byte
		from     = start + 1
	)

	for i := start; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote != '`':
				i++
			case c == quote:
				if i+1 < len(sql) && sql[i+1] == quote {
					i++
				} else {
					quote = 0
				}
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if last := strings.TrimSpace(sql[from:i]); last != "" || len(elements) > 0 {
					elements = append(elements, last)
				}
				return elements, i + 1, true
			}
		case ',':
			if depth == 1 {
				elements = append(elements, strings.TrimSpace(sql[from:i]))
				from = i + 1
			}
		}
	}
	return nil, len(sql), false
}

// rewriteStringLiterals calls fn with the body of every single-quoted literal
// and substitutes the returned body when fn reports a change
func rewriteStringLiterals(sql string, fn func(body string) (string, bool)) (string, int) {
	var (
		b       strings.Builder
		changed int
		last    int
		quote   byte
	)

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote != '`':
				i++
			case c == quote:
				if i+1 < len(sql) && sql[i+1] == quote {
					i++
				} else {
					quote = 0
				}
			}
			continue
		}
		if c == '"' || c == '`' {
			quote = c
			continue
		}
		if c != '\'' {
			continue
		}

		end, ok := literalEnd(sql, i)
		if !ok {
			break
		}
		if body, ok := fn(sql[i+1 : end]); ok {
			b.WriteString(sql[last : i+1])
			b.WriteString(body)
			last = end
			changed++
		}
		i = end
	}

	if changed == 0 {
		return sql, 0
	}
	b.WriteString(sql[last:])
	return b.String(), changed
}

// literalEnd returns the index of the quote closing the literal opened at start
func literalEnd(sql string, start int) (int, bool) {
	for i := start + 1; i < len(sql); i++ {
		switch sql[i] {
		case '\\':
			i++
		case '\'':
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			return i, true
		}
	}
	return 0, false
}

var sqlUnescapes = map[byte]string{
	'0': "\x00", 'b': "\b", 'n': "\n", 'r': "\r", 't': "\t", 'Z': "\x1a",
}

// unescapeLiteral returns the value MySQL stores for a single-quoted literal body
func unescapeLiteral(body string) string {
	if !strings.ContainsAny(body, `\'`) {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			i++
			if s, ok := sqlUnescapes[body[i]]; ok {
				b.WriteString(s)
			} else {
				b.WriteByte(body[i])
			}
		case c == '\'' && i+1 < len(body) && body[i+1] == '\'':
			i++
			b.WriteByte('\'')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unquoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && name[0] == '`' && name[len(name)-1] == '`' {
		return strings.ReplaceAll(name[1:len(name)-1], "``", "`")
	}
	return name
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

package restore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInsert(t *testing.T) {
	sql := "INSERT INTO `users` (`id`, `name`, `meta`) VALUES\n  (1, 'a, b', JSON_OBJECT('k', 'v')),\n  (2, 'it''s', NULL)"

	insert, ok := parseInsert(sql)
	require.True(t, ok)
	assert.Equal(t, "INSERT INTO `users`", insert.head)
	assert.Equal(t, []string{"id", "name", "meta"}, insert.columns)
	require.Len(t, insert.rows, 2)
	assert.Equal(t, []string{"1", "'a, b'", "JSON_OBJECT('k', 'v')"}, insert.rows[0])
	assert.Equal(t, []string{"2", "'it''s'", "NULL"}, insert.rows[1])
	assert.Empty(t, insert.tail)

	insert.dropColumn(1)
	assert.Equal(t,
		"INSERT INTO `users` (`id`, `meta`) VALUES\n  (1, JSON_OBJECT('k', 'v')),\n  (2, NULL)",
		insert.String())
}

func TestParseInsert_Tail(t *testing.T) {
	insert, ok := parseInsert("INSERT INTO t (a) VALUE (1) ON DUPLICATE KEY UPDATE a = a + 1")
	require.True(t, ok)
	assert.Equal(t, "ON DUPLICATE KEY UPDATE a = a + 1", insert.tail)
	assert.Equal(t, "INSERT INTO t (`a`) VALUES\n  (1) ON DUPLICATE KEY UPDATE a = a + 1", insert.String())
}

func TestParseInsert_Unsupported(t *testing.T) {
	for _, sql := range []string{
		"INSERT INTO t VALUES (1, 2)",
		"INSERT INTO t (a) SELECT a FROM s",
		"INSERT INTO t (a) VALUES (1, 'unterminated)",
		"CREATE TABLE t (a int)",
	} {
		_, ok := parseInsert(sql)
		assert.False(t, ok, sql)
	}
}

func TestRewriteStringLiterals(t *testing.T) {
	sql := "INSERT INTO t (`a'b`, c) VALUES ('x', \"y\", 'z''q', 'back\\'s')"
	var seen []string
	out, changed := rewriteStringLiterals(sql, func(body string) (string, bool) {
		seen = append(seen, body)
		return "", false
	})
	assert.Equal(t, sql, out)
	assert.Zero(t, changed)
	assert.Equal(t, []string{"x", "z''q", `back\'s`}, seen)

	out, changed = rewriteStringLiterals(sql, func(body string) (string, bool) {
		if body == "x" {
			return "X", true
		}
		return "", false
	})
	assert.Equal(t, 1, changed)
	assert.Contains(t, out, "VALUES ('X', ")
}

func TestUnescapeLiteral(t *testing.T) {
	assert.Equal(t, "plain", unescapeLiteral("plain"))
	assert.Equal(t, "it's", unescapeLiteral("it''s"))
	assert.Equal(t, "a\nb\\c\"d", unescapeLiteral(`a\nb\\c\"d`))
}

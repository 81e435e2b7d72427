package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-dump-manager/internal/backup"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configInitPath, configInitForce = "", false
		cfgFile, outputFormat = "", ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "today", "abc123", "go1.22")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mysql-dump-manager version 1.2.3")
	assert.Contains(t, out, "Commit: abc123")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mdm.yaml")

	out, err := execute(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "database:")
	assert.Contains(t, string(data), "retention: 50")

	_, err = execute(t, "config", "init", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--path", path, "--force")
	require.NoError(t, err)
}

func TestConfigShowRedactsPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  username: backup\n  password: hunter2\n  database: shop\n"), 0600))

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "username: backup")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "hunter2")
}

func TestInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mdm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  username: backup\n  database: shop\nlogging:\n  level: loud\n"), 0600))

	_, err := execute(t, "--config", path, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(bad)
		require.Error(t, err, bad)
		assert.True(t, backup.IsValidation(err), bad)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.sql")

	n, err := writeFile(path, bytes.NewBufferString("SELECT 1;\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1;\n", string(data))
}

func TestRestoreHelpDescribesNonDestructiveReplay(t *testing.T) {
	out, err := execute(t, "restore", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Existing tables are never dropped.")
	assert.Contains(t, out, "full safety dump of the live database, minus the\nmigration table")
	assert.NotContains(t, out, "dropped and recreated")
}

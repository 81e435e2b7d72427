package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-dump-manager/internal/logging"
)

func seedCatalog(t *testing.T, catalog *fakeCatalog, dir string, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("backup_full_%03d.sql.gz", i)
		_, err := catalog.Create(context.Background(), &Artifact{
			Filename:   name,
			Filepath:   filepath.Join(dir, name),
			BackupType: BackupTypeFull,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
}

func TestRetentionManager_DryRun(t *testing.T) {
	catalog := &fakeCatalog{}
	seedCatalog(t, catalog, "/backups", 5)
	rm := NewRetentionManager(catalog, nil, 3, logging.NewDiscardLogger())

	result, err := rm.Apply(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 5, result.TotalProcessed)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "backup_full_001.sql.gz", result.Candidates[0].Filename)
	assert.Equal(t, "backup_full_000.sql.gz", result.Candidates[1].Filename)
	assert.Zero(t, result.Deleted)
	assert.Len(t, catalog.artifacts, 5)
}

func TestRetentionManager_Apply(t *testing.T) {
	catalog := &fakeCatalog{}
	seedCatalog(t, catalog, "/backups", 55)
	rm := NewRetentionManager(catalog, nil, 0, nil)
	assert.Equal(t, DefaultRetention, rm.Keep())

	result, err := rm.Apply(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Deleted)
	assert.Len(t, catalog.artifacts, DefaultRetention)
	assert.Equal(t, []int{DefaultRetention}, catalog.retained)

	remaining, err := catalog.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backup_full_054.sql.gz", remaining[0].Filename)
	assert.Equal(t, "backup_full_005.sql.gz", remaining[len(remaining)-1].Filename)
}

func TestRetentionManager_Orphans(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	catalog := &fakeCatalog{}
	seedCatalog(t, catalog, store.BasePath(), 1)

	for _, name := range []string{"backup_full_000.sql.gz", "stray.sql", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(store.BasePath(), name), []byte("x"), 0644))
	}

	orphans, err := NewRetentionManager(catalog, store, 10, nil).Orphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(store.BasePath(), "stray.sql")}, orphans)
}

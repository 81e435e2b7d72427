package backup

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type fakeSchema struct {
	tables  []string
	ddl     map[string]string
	ddlErrs map[string]error
	listErr error
}

func (f *fakeSchema) ListTables(ctx context.Context) ([]string, error) {
	return f.tables, f.listErr
}

func (f *fakeSchema) TableDefinition(ctx context.Context, table string) (string, error) {
	if err := f.ddlErrs[table]; err != nil {
		return "", err
	}
	if ddl, ok := f.ddl[table]; ok {
		return ddl, nil
	}
	return fmt.Sprintf("CREATE TABLE `%s` (\n  `id` int NOT NULL\n)", table), nil
}

type fakeSerializer struct {
	statements map[string][]string
	tables     []string
}

func (f *fakeSerializer) SerializeTable(ctx context.Context, table string, emit func(string) error) error {
	f.tables = append(f.tables, table)
	stmts, ok := f.statements[table]
	if !ok {
		return emit(fmt.Sprintf("-- Table `%s` is empty", table))
	}
	for _, s := range stmts {
		if err := emit(s); err != nil {
			return err
		}
	}
	return nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	nextID    int64
	artifacts []*Artifact
	createErr error
	retainErr error
	retained  []int
}

func (f *fakeCatalog) Create(ctx context.Context, artifact *Artifact) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	artifact.ID = f.nextID
	f.artifacts = append(f.artifacts, artifact)
	return artifact.ID, nil
}

func (f *fakeCatalog) List(ctx context.Context) ([]*Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*Artifact(nil), f.artifacts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeCatalog) Get(ctx context.Context, id int64) (*Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.artifacts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, NewNotFoundError(fmt.Sprintf("backup %d not found", id), nil)
}

func (f *fakeCatalog) Delete(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.artifacts {
		if a.ID == id {
			f.artifacts = append(f.artifacts[:i], f.artifacts[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCatalog) Retain(ctx context.Context, keep int) (int, error) {
	f.mu.Lock()
	f.retained = append(f.retained, keep)
	retainErr := f.retainErr
	f.mu.Unlock()
	if retainErr != nil {
		return 0, retainErr
	}

	all, _ := f.List(ctx)
	if len(all) <= keep {
		return 0, nil
	}
	deleted := 0
	for _, a := range all[keep:] {
		if ok, _ := f.Delete(ctx, a.ID); ok {
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeCatalog) Stats(ctx context.Context) (*CatalogStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &CatalogStats{TotalBackups: len(f.artifacts)}
	for _, a := range f.artifacts {
		stats.TotalSizeMB += a.SizeMB
		if a.BackupType == BackupTypeFull {
			stats.FullBackups++
		} else {
			stats.PartialBackups++
		}
	}
	return stats, nil
}

type fakeMirror struct {
	uploaded  []string
	deleted   []string
	uploadErr error
}

func (f *fakeMirror) Name() string { return "fake" }

func (f *fakeMirror) Upload(ctx context.Context, localPath, name string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, name)
	return "fake://" + name, nil
}

func (f *fakeMirror) Delete(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// FileStore owns the directory artifact files live in
type FileStore struct {
	basePath    string
	permissions os.FileMode
}

// NewFileStore creates the artifact directory if needed
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, NewValidationError("backup directory is required", nil)
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, NewStorageError("failed to resolve backup directory", err)
	}

	store := &FileStore{basePath: abs, permissions: 0755}
	if err := os.MkdirAll(store.basePath, store.permissions); err != nil {
		return nil, NewStorageError(fmt.Sprintf("failed to create backup directory %s", abs), err)
	}
	return store, nil
}

// BasePath returns the absolute artifact directory
func (s *FileStore) BasePath() string {
	return s.basePath
}

// Create exclusively creates name inside the store. When name is taken a
// short random fragment is inserted before the extension. Returns the open
// file and its absolute path.
func (s *FileStore) Create(name string) (*os.File, string, error) {
	name = sanitizeFileName(name)

	for attempt := 0; attempt < 5; attempt++ {
		candidate := name
		if attempt > 0 {
			stem, ext := SplitArtifactExt(name)
			candidate = fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext)
		}

		path := filepath.Join(s.basePath, candidate)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", NewStorageError(fmt.Sprintf("failed to create artifact file %s", candidate), err)
		}
	}

	return nil, "", NewConflictError(fmt.Sprintf("could not allocate a unique file name for %s", name), nil)
}

// Open opens an artifact file for reading. A missing file is a NotFound error.
func (s *FileStore) Open(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewNotFoundError(fmt.Sprintf("artifact file %s not found", path), err)
		}
		return nil, NewStorageError("failed to open artifact file", err)
	}
	return file, nil
}

// ReadFile reads a whole artifact file
func (s *FileStore) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewNotFoundError(fmt.Sprintf("artifact file %s not found", path), err)
		}
		return nil, NewStorageError("failed to read artifact file", err)
	}
	return data, nil
}

// Exists reports whether path is a regular file
func (s *FileStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Size returns the size of path in bytes
func (s *FileStore) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, NewStorageError("failed to stat artifact file", err)
	}
	return info.Size(), nil
}

// Remove deletes an artifact file; a file that is already gone is not an error
func (s *FileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return NewStorageError(fmt.Sprintf("failed to delete artifact file %s", path), err)
	}
	return nil
}

// HealthCheck verifies that the directory is writable
func (s *FileStore) HealthCheck() error {
	testFile := filepath.Join(s.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("health_check"), 0644); err != nil {
		return NewStorageError("backup directory is not writable", err)
	}
	os.Remove(testFile)
	return nil
}

// Files lists the artifact-looking files in the directory; used to report
// orphans that have no catalog row
func (s *FileStore) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.basePath {
				return fs.SkipDir
			}
			return nil
		}
		if _, ok := AllowedImportExtension(d.Name()); ok || CompressionFromName(d.Name()) != CompressionTypeNone {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, NewStorageError("failed to list backup directory", err)
	}
	return files, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "backup.sql"
	}
	return name
}

// SplitArtifactExt splits name into stem and extension, keeping compound
// suffixes such as ".sql.gz" together
func SplitArtifactExt(name string) (string, string) {
	lower := strings.ToLower(name)
	for _, compound := range []string{".sql.gz", ".sql.zst", ".sql.lz4"} {
		if strings.HasSuffix(lower, compound) {
			return name[:len(name)-len(compound)], name[len(name)-len(compound):]
		}
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

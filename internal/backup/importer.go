package backup

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mysql-dump-manager/internal/logging"
)

// ImportPeekBytes is how much decompressed script text detection inspects
const ImportPeekBytes = 20000

// partialThreshold is the table count below which a dump is considered partial
const partialThreshold = 5

var allowedImportExtensions = []string{".sql.gz", ".sql", ".gz", ".backup"}

// AllowedImportExtension returns the accepted suffix of name, matched case-insensitively
func AllowedImportExtension(name string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, ext := range allowedImportExtensions {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return ext, true
		}
	}
	return "", false
}

// Detection is the best-effort classification of a dump script
type Detection struct {
	Type           BackupType
	Tables         []string
	ExplicitMarker bool
}

var (
	typeMarkerPattern = regexp.MustCompile(`(?im)^--\s*(?:Type|Tipo)\s*:\s*(FULL|PARTIAL)\b`)
	tablePatterns     = []*regexp.Regexp{
		regexp.MustCompile("(?i)\\bCREATE\\s+TABLE\\s+(?:IF\\s+NOT\\s+EXISTS\\s+)?`?([A-Za-z0-9_$]+)`?"),
		regexp.MustCompile("(?i)\\b(?:INSERT(?:\\s+IGNORE)?|REPLACE)\\s+INTO\\s+`?([A-Za-z0-9_$]+)`?"),
		regexp.MustCompile("(?i)\\bDROP\\s+TABLE\\s+IF\\s+EXISTS\\s+`?([A-Za-z0-9_$]+)`?"),
		regexp.MustCompile("(?im)^--\\s*(?:Table structure|Table data|Estructura de la tabla|Datos de la tabla|Tabla)\\s*:\\s*`?([A-Za-z0-9_$]+)`?"),
	}
)

// DetectDumpContents classifies script text. Text without markers is a full
// dump with no recorded tables; fewer than five distinct tables means partial.
func DetectDumpContents(text string) Detection {
	detection := Detection{Type: BackupTypeFull}

	if m := typeMarkerPattern.FindStringSubmatch(text); m != nil {
		detection.ExplicitMarker = true
		if strings.EqualFold(m[1], "PARTIAL") {
			detection.Type = BackupTypePartial
		}
	}

	seen := make(map[string]bool)
	for _, pattern := range tablePatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if !seen[name] {
				seen[name] = true
				detection.Tables = append(detection.Tables, name)
			}
		}
	}

	if len(detection.Tables) > 0 && len(detection.Tables) < partialThreshold {
		detection.Type = BackupTypePartial
	}
	return detection
}

// Importer registers externally produced dump files
type Importer struct {
	store       *FileStore
	catalog     ArtifactCatalog
	compression *CompressionManager
	logger      *logging.Logger
	now         func() time.Time
}

// NewImporter creates an importer writing into store
func NewImporter(store *FileStore, catalog ArtifactCatalog, logger *logging.Logger) *Importer {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Importer{
		store:       store,
		catalog:     catalog,
		compression: NewCompressionManager(),
		logger:      logger,
		now:         time.Now,
	}
}

// Import stores r under a generated name, classifies its content and
// registers it. Names outside the allow-list are rejected before anything
// is written.
func (im *Importer) Import(ctx context.Context, r io.Reader, originalName string) (*Artifact, error) {
	originalName = strings.TrimSpace(originalName)
	ext, ok := AllowedImportExtension(originalName)
	if !ok {
		return nil, NewValidationError(
			fmt.Sprintf("unsupported file type %q: allowed extensions are .sql, .sql.gz, .gz, .backup", filepath.Base(originalName)), nil)
	}

	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	stem := safeStem(base[:len(base)-len(ext)])
	createdAt := im.now()
	name := fmt.Sprintf("imported_%s_%s%s", createdAt.Format(fileTimestampLayout), stem, strings.ToLower(ext))

	file, path, err := im.store.Create(name)
	if err != nil {
		return nil, err
	}
	written, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		removeIfExists(path)
		return nil, NewStorageError("failed to store imported file", err)
	}

	detection := im.detect(path)

	artifact := &Artifact{
		Filename:   filepath.Base(path),
		Filepath:   path,
		SizeMB:     RoundSizeMB(written),
		BackupType: detection.Type,
		Status:     BackupStatusCompleted,
		CreatedAt:  createdAt,
	}
	if len(detection.Tables) > 0 {
		artifact.TablesIncluded = NewTableList(detection.Tables...)
	}

	if _, err := im.catalog.Create(ctx, artifact); err != nil {
		removeIfExists(path)
		return nil, err
	}

	im.logger.WithFields(map[string]interface{}{
		"backup_id": artifact.ID,
		"original":  originalName,
		"type":      artifact.BackupType,
		"tables":    len(detection.Tables),
	}).Info("Backup imported")
	return artifact, nil
}

// detect never fails; unreadable content yields an unclassified full dump
func (im *Importer) detect(path string) Detection {
	fallback := Detection{Type: BackupTypeFull}

	file, err := im.store.Open(path)
	if err != nil {
		im.logger.Warnf("Could not open imported file for detection: %v", err)
		return fallback
	}
	defer file.Close()

	reader, algorithm, err := im.compression.OpenDecompressed(file)
	if err != nil {
		im.logger.Warnf("Could not decompress imported file for detection: %v", err)
		return fallback
	}
	defer reader.Close()

	peek, err := io.ReadAll(io.LimitReader(reader, ImportPeekBytes))
	if err != nil && len(peek) == 0 {
		im.logger.Warnf("Could not read imported file (%s) for detection: %v", algorithm, err)
		return fallback
	}

	return DetectDumpContents(string(peek))
}

func safeStem(stem string) string {
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "dump"
	}
	return b.String()
}

package backup

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
)

// BackupType distinguishes dumps of every table from dumps of a caller-supplied subset
type BackupType string

const (
	BackupTypeFull    BackupType = "full"
	BackupTypePartial BackupType = "partial"
)

// BackupStatus represents the status of an artifact
type BackupStatus string

const (
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
	BackupStatusInProgress BackupStatus = "in_progress"
)

// Artifact is a catalogued dump file plus its metadata row
type Artifact struct {
	ID             int64        `json:"id" yaml:"id"`
	Filename       string       `json:"filename" yaml:"filename"`
	Filepath       string       `json:"filepath" yaml:"filepath"`
	SizeMB         float64      `json:"size_mb" yaml:"size_mb"`
	TablesIncluded TableList    `json:"tables_included" yaml:"tables_included"`
	BackupType     BackupType   `json:"backup_type" yaml:"backup_type"`
	Status         BackupStatus `json:"status" yaml:"status"`
	CreatedAt      time.Time    `json:"created_at" yaml:"created_at"`
}

// Compression returns the compression of the artifact file inferred from its path
func (a *Artifact) Compression() CompressionType {
	if a.Filepath != "" {
		return CompressionFromName(a.Filepath)
	}
	return CompressionFromName(a.Filename)
}

// IsCompressed reports whether the artifact file is stored compressed
func (a *Artifact) IsCompressed() bool {
	return a.Compression() != CompressionTypeNone
}

// DownloadName returns the file name offered to callers downloading the
// artifact. Compressed artifacts always carry their compression suffix.
func (a *Artifact) DownloadName() string {
	name := a.Filename
	if name == "" {
		name = filepath.Base(a.Filepath)
	}
	ct := a.Compression()
	if ct != CompressionTypeNone && CompressionFromName(name) != ct {
		name += ct.Extension()
	}
	return name
}

// ContentType returns the MIME type of the artifact's bytes
func (a *Artifact) ContentType() string {
	switch a.Compression() {
	case CompressionTypeGzip:
		return "application/gzip"
	case CompressionTypeZstd:
		return "application/zstd"
	case CompressionTypeLZ4:
		return "application/x-lz4"
	}
	return "application/sql"
}

// RoundSizeMB converts a byte count to megabytes rounded to two decimals
func RoundSizeMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

// TableList is the optional set of tables an artifact contains. A list that
// was never recorded (or recorded empty) is distinct from "zero tables".
type TableList struct {
	Recorded bool
	Names    []string
}

// NewTableList creates a recorded table list; an empty list is treated as unrecorded
func NewTableList(names ...string) TableList {
	if len(names) == 0 {
		return TableList{}
	}
	out := make([]string, len(names))
	copy(out, names)
	return TableList{Recorded: true, Names: out}
}

// Contains reports whether name is in the list
func (t TableList) Contains(name string) bool {
	for _, n := range t.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer, storing the list as JSON text or NULL
func (t TableList) Value() (driver.Value, error) {
	if !t.Recorded || len(t.Names) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(t.Names)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner. Unparseable legacy values are read as unrecorded.
func (t *TableList) Scan(src interface{}) error {
	*t = TableList{}

	var raw string
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into TableList", src)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil
	}
	*t = NewTableList(names...)
	return nil
}

// MarshalJSON renders an unrecorded list as null
func (t TableList) MarshalJSON() ([]byte, error) {
	if !t.Recorded {
		return []byte("null"), nil
	}
	return json.Marshal(t.Names)
}

// UnmarshalJSON implements json.Unmarshaler
func (t *TableList) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*t = NewTableList(names...)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (t TableList) MarshalYAML() (interface{}, error) {
	if !t.Recorded {
		return nil, nil
	}
	return t.Names, nil
}

// String joins the table names for display
func (t TableList) String() string {
	if !t.Recorded {
		return "-"
	}
	return strings.Join(t.Names, ", ")
}

// CatalogStats summarizes the artifact catalog
type CatalogStats struct {
	TotalBackups   int        `json:"total_backups" yaml:"total_backups"`
	TotalSizeMB    float64    `json:"total_size_mb" yaml:"total_size_mb"`
	FullBackups    int        `json:"full_backups" yaml:"full_backups"`
	PartialBackups int        `json:"partial_backups" yaml:"partial_backups"`
	LastBackup     *time.Time `json:"last_backup,omitempty" yaml:"last_backup,omitempty"`
}

// DumpRequest selects what a dump contains. Nil Tables means every table.
type DumpRequest struct {
	Tables []string
	Label  string
	// Exclude removes tables from a full dump; used by the restore safety net
	Exclude []string
	// SkipRetention leaves older artifacts in place after the dump is registered
	SkipRetention bool
}

// IsPartial reports whether the request names an explicit table subset
func (r DumpRequest) IsPartial() bool {
	return r.Tables != nil
}

// Validate checks caller input
func (r DumpRequest) Validate() error {
	var errs ValidationErrors
	if r.Tables != nil && len(dedupeTables(r.Tables)) == 0 {
		errs.Add("tables", "a partial dump requires at least one table", r.Tables)
	}
	for _, t := range r.Tables {
		if strings.TrimSpace(t) == "" {
			errs.Add("tables", "table names cannot be blank", t)
			break
		}
	}
	if errs.HasErrors() {
		return NewValidationError("invalid dump request", errs)
	}
	return nil
}

func dedupeTables(tables []string) []string {
	seen := make(map[string]bool, len(tables))
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}

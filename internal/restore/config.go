package restore

import (
	"fmt"
	"time"
)

// Defaults for restore options
const (
	DefaultTimeout                = 5 * time.Minute
	DefaultMigrationTable         = "alembic_version"
	DefaultMigrationVersionColumn = "version_num"
	SafetyDumpLabel               = "pre_restore_safety"
)

// DefaultCountTables are counted before and after every restore
var DefaultCountTables = []string{"users"}

// Options configures the restore engine
type Options struct {
	Timeout                time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	MigrationTable         string            `mapstructure:"migration_table" yaml:"migration_table"`
	MigrationVersionColumn string            `mapstructure:"migration_version_column" yaml:"migration_version_column"`
	CountTables            []string          `mapstructure:"count_tables" yaml:"count_tables"`
	ColumnAliases          map[string]string `mapstructure:"column_aliases" yaml:"column_aliases,omitempty"`
	DisableSafetyDump      bool              `mapstructure:"disable_safety_dump" yaml:"disable_safety_dump"`
}

// SetDefaults fills unset options
func (o *Options) SetDefaults() {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MigrationTable == "" {
		o.MigrationTable = DefaultMigrationTable
	}
	if o.MigrationVersionColumn == "" {
		o.MigrationVersionColumn = DefaultMigrationVersionColumn
	}
	if o.CountTables == nil {
		o.CountTables = append([]string(nil), DefaultCountTables...)
	}
}

// Validate checks the options
func (o *Options) Validate() error {
	if o.Timeout < 0 {
		return fmt.Errorf("restore timeout cannot be negative")
	}
	for from, to := range o.ColumnAliases {
		if from == "" || to == "" {
			return fmt.Errorf("column alias %q -> %q must name both columns", from, to)
		}
	}
	return nil
}

// aliases merges configured aliases over the built-in ones
func (o *Options) aliases() map[string]string {
	merged := make(map[string]string, len(DefaultColumnAliases)+len(o.ColumnAliases))
	for from, to := range DefaultColumnAliases {
		merged[from] = to
	}
	for from, to := range o.ColumnAliases {
		merged[from] = to
	}
	return merged
}

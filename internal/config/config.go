package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/database"
	"mysql-dump-manager/internal/display"
	"mysql-dump-manager/internal/logging"
	"mysql-dump-manager/internal/restore"
	"mysql-dump-manager/internal/scheduler"
)

const (
	// EnvPrefix prefixes every environment override, e.g. MDM_DATABASE_HOST
	EnvPrefix = "MDM"
	// DefaultFileName is looked up in $HOME when no --config is given
	DefaultFileName = ".mysql-dump-manager.yaml"
)

// Config is the complete application configuration
type Config struct {
	Database  database.DatabaseConfig `mapstructure:"database" yaml:"database"`
	Backup    backup.Options          `mapstructure:"backup" yaml:"backup"`
	Restore   restore.Options         `mapstructure:"restore" yaml:"restore"`
	Mirror    backup.MirrorConfig     `mapstructure:"mirror" yaml:"mirror"`
	Logging   LoggingConfig           `mapstructure:"logging" yaml:"logging"`
	Display   display.DisplayConfig   `mapstructure:"display" yaml:"display"`
	Schedules []ScheduleConfig        `mapstructure:"schedules" yaml:"schedules,omitempty"`
}

// LoggingConfig selects the log level, format and destination
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	ShowCaller bool   `mapstructure:"show_caller" yaml:"show_caller"`
}

// ScheduleConfig is one recurring dump run by the serve command
type ScheduleConfig struct {
	Hour   int      `mapstructure:"hour" yaml:"hour"`
	Minute int      `mapstructure:"minute" yaml:"minute"`
	Days   []int    `mapstructure:"days" yaml:"days,omitempty"`
	Type   string   `mapstructure:"type" yaml:"type"`
	Tables []string `mapstructure:"tables" yaml:"tables,omitempty"`
	Label  string   `mapstructure:"label" yaml:"label,omitempty"`
}

// Request converts the entry into a scheduler request
func (sc ScheduleConfig) Request() scheduler.Request {
	return scheduler.Request{
		Hour:   sc.Hour,
		Minute: sc.Minute,
		Days:   sc.Days,
		Type:   backup.BackupType(sc.Type),
		Tables: sc.Tables,
		Label:  sc.Label,
	}
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{Display: *display.DefaultDisplayConfig()}
	cfg.SetDefaults()
	return cfg
}

// Redacted returns a copy with passwords and cloud keys masked
func (c Config) Redacted() Config {
	c.Database.Password = mask(c.Database.Password)
	if c.Mirror.S3 != nil {
		s3 := *c.Mirror.S3
		s3.SecretKey = mask(s3.SecretKey)
		c.Mirror.S3 = &s3
	}
	if c.Mirror.Azure != nil {
		az := *c.Mirror.Azure
		az.AccountKey = mask(az.AccountKey)
		c.Mirror.Azure = &az
	}
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// SetDefaults fills unset fields in every section
func (c *Config) SetDefaults() {
	c.Database.SetDefaults()
	c.Backup.SetDefaults()
	c.Restore.SetDefaults()
	c.Mirror.SetDefaults()
	c.Logging.SetDefaults()
	c.Display.SetDefaults()
	for i := range c.Schedules {
		if c.Schedules[i].Type == "" {
			c.Schedules[i].Type = string(backup.BackupTypeFull)
		}
	}
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := c.Backup.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backup: %w", err))
	}
	if err := c.Restore.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("restore: %w", err))
	}
	if err := c.Mirror.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("mirror: %w", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := c.Display.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("display: %w", err))
	}
	for i, sc := range c.Schedules {
		if err := sc.Request().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("schedules[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// SetDefaults fills unset logging fields
func (lc *LoggingConfig) SetDefaults() {
	if lc.Level == "" {
		lc.Level = string(logging.LogLevelNormal)
	}
	if lc.Format == "" {
		lc.Format = "text"
	}
}

// Validate checks the logging section
func (lc *LoggingConfig) Validate() error {
	switch logging.LogLevel(lc.Level) {
	case logging.LogLevelQuiet, logging.LogLevelNormal, logging.LogLevelVerbose, logging.LogLevelDebug:
	default:
		return fmt.Errorf("invalid log level %q, must be one of: quiet, normal, verbose, debug", lc.Level)
	}
	if lc.Format != "text" && lc.Format != "json" {
		return fmt.Errorf("invalid log format %q, must be text or json", lc.Format)
	}
	return nil
}

// LoggerConfig converts the section into a logger configuration
func (lc LoggingConfig) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      logging.LogLevel(lc.Level),
		Format:     lc.Format,
		ShowCaller: lc.ShowCaller,
		LogFile:    lc.File,
	}
}

// NewViper returns a viper instance reading path (or the default file in
// $HOME when path is empty) plus MDM_ environment overrides
func NewViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, ".yaml"))
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every scalar key so AutomaticEnv can see it during
// Unmarshal
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.username", d.Database.Username)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.database", d.Database.Database)
	v.SetDefault("database.charset", d.Database.Charset)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)

	v.SetDefault("backup.directory", d.Backup.Directory)
	v.SetDefault("backup.batch_size", d.Backup.BatchSize)
	v.SetDefault("backup.compression", d.Backup.Compression)
	v.SetDefault("backup.compression_level", d.Backup.CompressionLevel)
	v.SetDefault("backup.retention", d.Backup.Retention)
	v.SetDefault("backup.default_label", d.Backup.DefaultLabel)

	v.SetDefault("restore.timeout", d.Restore.Timeout)
	v.SetDefault("restore.migration_table", d.Restore.MigrationTable)
	v.SetDefault("restore.migration_version_column", d.Restore.MigrationVersionColumn)
	v.SetDefault("restore.count_tables", d.Restore.CountTables)
	v.SetDefault("restore.disable_safety_dump", d.Restore.DisableSafetyDump)

	v.SetDefault("mirror.provider", string(d.Mirror.Provider))
	v.SetDefault("mirror.prefix", d.Mirror.Prefix)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.show_caller", d.Logging.ShowCaller)

	v.SetDefault("display.color_enabled", d.Display.ColorEnabled)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("display.output_format", d.Display.OutputFormat)
	v.SetDefault("display.use_icons", d.Display.UseIcons)
	v.SetDefault("display.interactive", d.Display.InteractiveMode)
	v.SetDefault("display.table_style", d.Display.TableStyle)
	v.SetDefault("display.max_table_width", d.Display.MaxTableWidth)
}

// Load reads the configuration file (a missing default file is not an
// error), applies environment overrides and defaults, then validates
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns $HOME/.mysql-dump-manager.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// WriteFile writes cfg as YAML to path. An existing file is only replaced
// when overwrite is set.
func WriteFile(cfg *Config, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s", path)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

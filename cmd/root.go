package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mysql-dump-manager/internal/application"
	"mysql-dump-manager/internal/config"
	"mysql-dump-manager/internal/display"
	"mysql-dump-manager/internal/logging"
)

var (
	cfgFile      string
	logLevel     string
	outputFormat string
	noColor      bool
	noIcons      bool
	quiet        bool
)

// cli holds what PersistentPreRunE prepared for the running command
type cli struct {
	config  *config.Config
	logger  *logging.Logger
	printer *display.Printer
}

var current *cli

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mysql-dump-manager",
	Short: "Logical backups and resilient restores for a MySQL schema",
	Long: `MySQL Dump Manager writes logical SQL dumps of a MySQL schema, keeps a
catalog of them in the same database, and restores them with automatic
repair of damaged scripts and fallbacks when data no longer fits.

Examples:
  # Dump every table and list the catalog
  mysql-dump-manager dump create
  mysql-dump-manager dump list

  # Dump two tables with a label
  mysql-dump-manager dump create --tables users,orders --label before-migration

  # Restore a backup after confirming interactively
  mysql-dump-manager restore 42

  # Run the configured schedules until interrupted
  mysql-dump-manager serve`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: prepare,
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main().
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (quiet, normal, verbose, debug)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().BoolVar(&noIcons, "no-icons", false, "disable icons")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddCommand(createVersionCommand())
}

// prepare loads the configuration and builds the logger and printer.
// Command line flags override the file and MDM_ environment variables.
func prepare(cmd *cobra.Command, args []string) error {
	v := config.NewViper(cfgFile)
	bindFlags(v, cmd)

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if noColor {
		cfg.Display.ColorEnabled = false
	}
	if noIcons {
		cfg.Display.UseIcons = false
	}
	cfg.Display.Writer = cmd.OutOrStdout()

	loggerCfg := cfg.Logging.LoggerConfig()
	loggerCfg.Output = os.Stderr
	logger, err := logging.NewLogger(loggerCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	current = &cli{
		config:  cfg,
		logger:  logger,
		printer: display.NewPrinter(&cfg.Display, cmd.ErrOrStderr()),
	}
	return nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	flags := cmd.Flags()
	for key, name := range map[string]string{
		"logging.level":         "log-level",
		"display.output_format": "output",
		"display.quiet":         "quiet",
	} {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

// withApp connects to the database, runs fn and closes the application
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *application.Application, p *display.Printer) error) error {
	ctx := cmd.Context()
	app, err := application.New(ctx, current.config, current.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			current.logger.WithField("error", cerr.Error()).Warn("Failed to close application")
		}
	}()
	return fn(ctx, app, current.printer)
}

func reportError(err error) {
	if current == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return
	}
	current.printer.Error(err.Error())
	current.printer.PrintHints(application.TroubleshootingHints(err))
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mysql-dump-manager version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

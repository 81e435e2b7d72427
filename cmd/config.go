package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mysql-dump-manager/internal/config"
	"mysql-dump-manager/internal/display"
)

var (
	configInitPath  string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default",
	Long: `Write a YAML configuration file containing every setting and its default.
Passwords are better kept in the MDM_DATABASE_PASSWORD environment variable.

Examples:
  # Write $HOME/.mysql-dump-manager.yaml
  mysql-dump-manager config init

  # Write a project local file
  mysql-dump-manager config init --path ./dump-manager.yaml`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		if err := config.WriteFile(config.Default(), path, configInitForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := current.config.Redacted()
		format := current.printer.Format()
		if !format.IsStructured() {
			format = display.FormatYAML
		}
		return display.Encode(cmd.OutOrStdout(), format, &cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().StringVar(&configInitPath, "path", "", "file to write (default $HOME/"+config.DefaultFileName+")")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
}

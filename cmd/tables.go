package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"mysql-dump-manager/internal/application"
	"mysql-dump-manager/internal/display"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the configured schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			tables, err := app.ListDatabaseTables(ctx)
			if err != nil {
				return err
			}
			return p.PrintTables(tables)
		})
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mysql-dump-manager/internal/application"
	"mysql-dump-manager/internal/confirmation"
	"mysql-dump-manager/internal/display"
	"mysql-dump-manager/internal/restore"
)

var restoreConfirm bool

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a dump over the live database",
	Long: `Replay a dump over the live database.

Existing tables are never dropped. DROP TABLE statements in the dump are
removed and CREATE TABLE only runs for tables that are missing.

Before anything changes a full safety dump of the live database, minus the
migration table, is taken. Damaged scripts are repaired, renamed columns are
mapped to the live schema, and when data no longer fits the restore falls back
to skipping the failing tables' data and then to structure only.

Without --confirm the command asks for confirmation when stdin is a terminal
and refuses to run otherwise.

Examples:
  # Restore after an interactive prompt
  mysql-dump-manager restore 42

  # Restore from a script
  mysql-dump-manager restore 42 --confirm --output json`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().BoolVar(&restoreConfirm, "confirm", false, "restore without prompting")
}

func runRestore(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
		confirmed := restoreConfirm
		if !confirmed && current.config.Display.IsInteractiveEnabled() && stdinIsTerminal() {
			artifact, err := app.GetDump(ctx, id)
			if err != nil {
				return err
			}
			confirmed, err = confirmation.NewRestoreConfirmer(p, confirmation.WithOutput(cmd.ErrOrStderr())).ConfirmRestore(artifact, false)
			if err != nil {
				return err
			}
			if !confirmed {
				p.Info("Restore cancelled")
				return nil
			}
		}

		spinner := p.NewSpinner(fmt.Sprintf("Restoring backup %d", id))
		if confirmed {
			spinner.Start()
		}
		result, err := app.RestoreDump(ctx, id, confirmed)
		spinner.Stop("")
		if result != nil {
			if perr := p.PrintRestoreResult(result); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if result.Outcome == restore.OutcomeFailed {
			return fmt.Errorf("restore of backup %d failed", id)
		}
		return nil
	})
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

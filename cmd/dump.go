package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"mysql-dump-manager/internal/application"
	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/display"
)

var (
	dumpTables     []string
	dumpLabel      string
	downloadTarget string
	pruneDryRun    bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Create and manage dumps",
	Long: `Create, list, download, import and delete logical dumps.

Examples:
  # Dump every table
  mysql-dump-manager dump create

  # Dump selected tables with a label
  mysql-dump-manager dump create --tables users,orders --label nightly

  # Download a dump to a file
  mysql-dump-manager dump download 12 -o /tmp/dump.sql.gz

  # Import a dump produced elsewhere
  mysql-dump-manager dump import ./prod.sql`,
}

var dumpCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Dump the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			spinner := p.NewSpinner("Dumping database")
			spinner.Start()
			artifact, err := app.CreateDump(ctx, backup.DumpRequest{Tables: dumpTables, Label: dumpLabel})
			spinner.Stop("")
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Created backup %d (%s, %.2f MB)", artifact.ID, artifact.Filename, artifact.SizeMB))
			return p.PrintArtifact(artifact)
		})
	},
}

var dumpListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List dumps, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			artifacts, err := app.ListDumps(ctx)
			if err != nil {
				return err
			}
			return p.PrintArtifacts(artifacts)
		})
	},
}

var dumpGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			artifact, err := app.GetDump(ctx, id)
			if err != nil {
				return err
			}
			return p.PrintArtifact(artifact)
		})
	},
}

var dumpDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a dump and its file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			deleted, err := app.DeleteDump(ctx, id)
			if err != nil {
				return err
			}
			if !deleted {
				return backup.NewNotFoundError(fmt.Sprintf("backup %d not found", id), nil)
			}
			p.Success(fmt.Sprintf("Deleted backup %d", id))
			return nil
		})
	},
}

var dumpDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Copy a dump file out of the backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			dl, err := app.DownloadDump(ctx, id)
			if err != nil {
				return err
			}
			defer dl.Body.Close()

			target := downloadTarget
			if target == "" {
				target = dl.Name
			} else if info, err := os.Stat(target); err == nil && info.IsDir() {
				target = filepath.Join(target, dl.Name)
			}

			n, err := writeFile(target, dl.Body)
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Saved %s (%d bytes, %s)", target, n, dl.ContentType))
			return nil
		})
	},
}

var dumpImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Register an external .sql or .sql.gz file as a full dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return backup.NewValidationError(fmt.Sprintf("cannot open %s", args[0]), err)
		}
		defer f.Close()

		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			artifact, err := app.ImportDump(ctx, f, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Imported %s as backup %d", filepath.Base(args[0]), artifact.ID))
			return p.PrintArtifact(artifact)
		})
	},
}

var dumpStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			stats, err := app.Stats(ctx)
			if err != nil {
				return err
			}
			return p.PrintStats(stats.Catalog, stats.Metrics, stats.Scheduled)
		})
	},
}

var dumpPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention limit now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			result, err := app.Prune(ctx, pruneDryRun)
			if err != nil {
				return err
			}
			return p.PrintRetention(result)
		})
	},
}

var dumpOrphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List files in the backup directory that no catalog entry references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			orphans, err := app.Orphans(ctx)
			if err != nil {
				return err
			}
			if len(orphans) == 0 && !p.Format().IsStructured() {
				p.Info("No orphaned files")
				return nil
			}
			return p.PrintTables(orphans)
		})
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.AddCommand(dumpCreateCmd, dumpListCmd, dumpGetCmd, dumpDeleteCmd, dumpDownloadCmd,
		dumpImportCmd, dumpStatsCmd, dumpPruneCmd, dumpOrphansCmd)

	dumpCreateCmd.Flags().StringSliceVar(&dumpTables, "tables", nil, "comma separated tables to dump (default all)")
	dumpCreateCmd.Flags().StringVar(&dumpLabel, "label", "", "label appended to the file name")
	dumpDownloadCmd.Flags().StringVarP(&downloadTarget, "out-file", "o", "", "destination file or directory (default the dump's name in the current directory)")
	dumpPruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be deleted")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, backup.NewValidationError(fmt.Sprintf("invalid backup id %q", s), nil)
	}
	return id, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, nil
}

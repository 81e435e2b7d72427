package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"mysql-dump-manager/internal/application"
	"mysql-dump-manager/internal/display"
)

var serveGrace time.Duration

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect the configured dump schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the configured schedules and their next run times",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			if _, err := app.ScheduleConfigured(); err != nil {
				return err
			}
			return p.PrintJobs(app.ListScheduledDumps())
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the configured schedules until interrupted",
	Long: `Start the scheduler with every entry of the schedules: section and block
until SIGINT or SIGTERM. Dumps that are running when the signal arrives get
--grace to finish.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *application.Application, p *display.Printer) error {
			jobs, err := app.ScheduleConfigured()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				p.Warning("No schedules configured, serve will only wait for a signal")
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			shutdown := app.ShutdownHandler()
			shutdown.RegisterShutdownFunc(func() error {
				p.Info("Shutting down")
				cancel()
				return nil
			})
			shutdown.Start()
			defer shutdown.Stop()

			p.Success("Scheduler running, press Ctrl+C to stop")
			return app.Serve(ctx, serveGrace)
		})
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd, serveCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	serveCmd.Flags().DurationVar(&serveGrace, "grace", 5*time.Minute, "time running dumps get to finish at shutdown")
}


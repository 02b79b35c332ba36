package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fastsql2json/sql2json/internal/daemon"
	"github.com/fastsql2json/sql2json/internal/dashboard"
	"github.com/fastsql2json/sql2json/internal/pipeline"
	"github.com/fastsql2json/sql2json/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "pipeline",
	Short:   "Keep JSON outputs up to date in the background",
	Long: `Run a pass on startup, then keep running passes on a cron schedule and/or
regenerate query files as soon as they change on disk.

The schedule accepts standard five-field cron expressions and descriptors such
as "@every 5m" or "@hourly". A tick is skipped while the previous pass is
still running.

With --dashboard-port a websocket endpoint (/ws) streams per-file outcomes and
pass summaries; /health reports the server status.

Examples:
  sql2json serve --schedule "@every 5m"
  sql2json serve --watch --dashboard-port 8090`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().String("schedule", "", "Cron expression or descriptor for full passes")
	serveCmd.Flags().Bool("watch", false, "Regenerate query files when they change")
	serveCmd.Flags().Int("dashboard-port", 0, "Serve the websocket dashboard on this port (0 disables)")
	serveCmd.Flags().String("dashboard-host", "", "Interface the dashboard binds (default 127.0.0.1)")

	bindFlag("serve.schedule", serveCmd.Flags().Lookup("schedule"))
	bindFlag("serve.watch", serveCmd.Flags().Lookup("watch"))
	bindFlag("serve.dashboard_port", serveCmd.Flags().Lookup("dashboard-port"))
	bindFlag("serve.dashboard_host", serveCmd.Flags().Lookup("dashboard-host"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := loadSession(ctx)
	exitOnError(err)

	if err := serve(ctx, cmd, s); err != nil {
		s.logger.Error("Daemon failed", "category", pipeline.Category(err), "error", err)
		s.Close()
		os.Exit(exitFatal)
	}
	s.Close()
}

func serve(ctx context.Context, cmd *cobra.Command, s *session) error {
	sc := s.cfg.Serve
	if sc.Schedule == "" && !sc.Watch {
		return errors.New("nothing to do: set a schedule or enable watch")
	}

	var observer pipeline.Observer
	if sc.DashboardPort > 0 {
		server := dashboard.NewServer(dashboard.Config{
			Host:   sc.DashboardHost,
			Port:   sc.DashboardPort,
			Logger: s.logger,
		})
		// The handler installs the stats greeting, so it exists before the
		// first client can connect.
		observer = dashboard.NewHandler(server, s.logger)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				s.logger.Warn("Failed to stop dashboard", "error", err)
			}
		}()

		if !quiet && !errorOnly {
			fmt.Fprintf(cmd.OutOrStdout(), "%s ws://%s/ws\n", ui.RenderAccent("Dashboard:"), server.GetAddr())
		}
	}

	d, err := daemon.New(s.cfg.App.StartDir, s.processor(), &daemon.Config{
		Schedule:         sc.Schedule,
		Watch:            sc.Watch,
		DebounceInterval: sc.DebounceInterval,
		Concurrency:      s.cfg.App.Concurrency,
		Observer:         observer,
		Logger:           s.logger,
	})
	if err != nil {
		return err
	}
	return d.Start(ctx)
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fastsql2json/sql2json/internal/logging"
	"github.com/fastsql2json/sql2json/internal/pipeline"
	"github.com/fastsql2json/sql2json/internal/scanner"
	"github.com/fastsql2json/sql2json/internal/ui"
)

var (
	strict      bool
	showSummary bool
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "pipeline",
	Short:   "Process every stale query file once",
	Long: `Scan the start directory for *.sql files and regenerate every JSON output
that is missing or stale, processing several files at once.

A failing file is logged with its error category and does not stop the
others. With --strict the exit status is 2 when any file failed.`,
	Run: runPass,
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with status 2 if any file failed")
	cmd.Flags().BoolVar(&showSummary, "summary", false, "Print a run summary to stdout")
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runPass(cmd *cobra.Command, _ []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := loadSession(ctx)
	exitOnError(err)

	code := func() int {
		defer s.Close()

		files, err := scanner.ScanSQLFiles(s.cfg.App.StartDir)
		if err != nil {
			s.logger.Error("Failed to scan start directory", "dir", s.cfg.App.StartDir, "error", err)
			return exitFatal
		}
		s.logger.Info("Found SQL files", "count", len(files), "dir", s.cfg.App.StartDir)

		ctx := logging.WithLogger(ctx, s.logger)
		report := pipeline.NewScheduler(s.processor(), s.cfg.App.Concurrency).Run(ctx, files)

		if report.Failed > 0 {
			s.logger.Warn("Finished with failures",
				"run_id", report.RunID,
				"generated", report.Generated,
				"fresh", report.Fresh,
				"locked", report.Locked,
				"failed", report.Failed,
			)
		} else {
			s.logger.Info("All SQL files processed successfully",
				"run_id", report.RunID,
				"generated", report.Generated,
				"fresh", report.Fresh,
				"locked", report.Locked,
			)
		}

		if showSummary && !quiet {
			ui.PrintSummary(cmd.OutOrStdout(), report)
		}

		if strict && report.Failed > 0 {
			return exitFileFailure
		}
		return exitOK
	}()

	if code != exitOK {
		os.Exit(code)
	}
}

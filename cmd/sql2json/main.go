// Command sql2json materializes the results of .sql query files as JSON.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fastsql2json/sql2json/internal/config"
)

// Exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitFileFailure = 2
)

var (
	// v carries environment and flag overrides for the config file.
	v = config.NewViper()

	configPath string
	quiet      bool
	errorOnly  bool
)

var rootCmd = &cobra.Command{
	Use:   "sql2json",
	Short: "Convert SQL query results to JSON files",
	Long: `sql2json executes every *.sql file below the configured start directory and
writes each result to a sibling *.json file.

A file is re-run only when its JSON output is missing or stale: files listed
under [file_intervals] in the configuration are refreshed once their output is
older than the given number of minutes, all other files on every run. Each
file is guarded by a "<file>.lock" sidecar so overlapping runs never process
the same file twice, and outputs are replaced atomically.

Running sql2json without a subcommand performs a single pass, like "run".`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run:           runPass,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file (TOML or YAML)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Disable all output")
	pf.BoolVarP(&errorOnly, "error-only", "e", false, "Only output errors")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: text or json")
	pf.String("log-file", "", "Also write logs to this file (rotated)")
	pf.IntP("concurrency", "j", 0, "Number of files processed at once")
	pf.String("start-dir", "", "Directory scanned for *.sql files")

	bindFlag("log.level", pf.Lookup("log-level"))
	bindFlag("log.format", pf.Lookup("log-format"))
	bindFlag("log.file", pf.Lookup("log-file"))
	bindFlag("app.concurrency", pf.Lookup("concurrency"))
	bindFlag("app.start_dir", pf.Lookup("start-dir"))

	addRunFlags(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}

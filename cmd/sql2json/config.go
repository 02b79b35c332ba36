package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/fastsql2json/sql2json/internal/config"
	"github.com/fastsql2json/sql2json/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Create or inspect the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration to --config (default config.toml). The format
follows the file extension: .yaml/.yml writes YAML, anything else TOML.

With --interactive the database connection is asked for on the terminal.
An existing file is only replaced with --force.`,
	Run: func(cmd *cobra.Command, _ []string) {
		interactive, _ := cmd.Flags().GetBool("interactive")
		force, _ := cmd.Flags().GetBool("force")

		cfg := config.Default()
		if interactive {
			if err := promptConfig(cfg); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(os.Stderr, "Aborted")
					os.Exit(exitFatal)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(exitFatal)
			}
		}

		if err := config.WriteTemplate(configPath, cfg, force); err != nil {
			if errors.Is(err, os.ErrExist) {
				fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to replace it)\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(exitFatal)
		}

		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderPass("✓ Wrote"), configPath)
		}
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after environment and flag overrides are applied.
The database password is masked.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg, err := config.Load(configPath, v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitFatal)
		}
		if err := config.Encode(cmd.OutOrStdout(), cfg.Redacted(), configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(exitFatal)
		}
	},
}

func init() {
	configInitCmd.Flags().BoolP("interactive", "i", false, "Prompt for the database connection")
	configInitCmd.Flags().BoolP("force", "f", false, "Replace an existing configuration file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// promptConfig asks for the connection settings and stores them in cfg.
func promptConfig(cfg *config.Config) error {
	db := &cfg.Database
	driver := db.Driver
	port := ""

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Database driver").
				Options(
					huh.NewOption("MySQL / MariaDB", config.DriverMySQL),
					huh.NewOption("PostgreSQL", config.DriverPostgres),
					huh.NewOption("SQLite", config.DriverSQLite),
				).
				Value(&driver),
		),
		huh.NewGroup(
			huh.NewInput().Title("Host").Value(&db.Host),
			huh.NewInput().
				Title("Port").
				Placeholder("default for the driver").
				Value(&port).
				Validate(validatePort),
			huh.NewInput().Title("User").Value(&db.User),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&db.Password),
			huh.NewInput().Title("Database").Value(&db.Database),
		).WithHideFunc(func() bool { return driver == config.DriverSQLite }),
		huh.NewGroup(
			huh.NewInput().Title("Database file").Value(&db.Database),
		).WithHideFunc(func() bool { return driver != config.DriverSQLite }),
		huh.NewGroup(
			huh.NewInput().Title("Query directory").Value(&cfg.App.StartDir),
		),
	).Run()
	if err != nil {
		return err
	}

	db.Driver = driver
	db.Port = config.DefaultPort(driver)
	if port != "" {
		db.Port, _ = strconv.Atoi(port)
	}
	if driver == config.DriverSQLite {
		db.Host = ""
	}
	return nil
}

func validatePort(s string) error {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/fastsql2json/sql2json/internal/config"
	"github.com/fastsql2json/sql2json/internal/db"
	"github.com/fastsql2json/sql2json/internal/logging"
	"github.com/fastsql2json/sql2json/internal/pipeline"
)

func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag.Name, err))
	}
}

// session is everything a pipeline command needs once startup succeeded.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	database *db.DB
	logFile  io.Closer
}

// loadSession loads the configuration, sets up logging and connects to the
// database. Failures are fatal for the command.
func loadSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configPath, v)
	if err != nil {
		return nil, err
	}

	logger, closer := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Quiet:      quiet,
		ErrorOnly:  errorOnly,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("Loaded configuration", "path", configPath)

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	logger.Info("Connected to database", "driver", cfg.Database.Driver, "target", database.Target())

	if version, err := database.Version(ctx); err != nil {
		logger.Warn("Failed to query server version", "error", err)
	} else {
		logger.Info("Server version", "driver", cfg.Database.Driver, "version", version)
	}

	return &session{cfg: cfg, logger: logger, database: database, logFile: closer}, nil
}

func (s *session) processor() *pipeline.Processor {
	return &pipeline.Processor{
		Exec:     s.database,
		Interval: s.cfg.Interval,
	}
}

func (s *session) Close() {
	if err := s.database.Close(); err != nil {
		s.logger.Warn("Failed to close database", "error", err)
	}
	_ = s.logFile.Close()
}

// exitOnError prints a fatal startup error and exits.
func exitOnError(err error) {
	if err == nil {
		return
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", pipeline.Category(err), err)
		var ce *config.ConfigurationError
		if errors.As(err, &ce) && errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Create one with: sql2json config init --config %s\n", configPath)
		}
	}
	os.Exit(exitFatal)
}

// Package daemon keeps generated JSON documents up to date in the background.
//
// The daemon:
//  1. Runs a full pass over the start directory on startup
//  2. Re-runs full passes on a cron schedule, skipping a tick while the
//     previous pass is still running
//  3. Optionally watches the tree and regenerates changed query files
//     after a debounce delay, regardless of their refresh interval
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fastsql2json/sql2json/internal/config"
	"github.com/fastsql2json/sql2json/internal/logging"
	"github.com/fastsql2json/sql2json/internal/pipeline"
	"github.com/fastsql2json/sql2json/internal/scanner"
)

// Processor runs query files. *pipeline.Processor implements it.
type Processor interface {
	pipeline.FileProcessor
	Regenerate(ctx context.Context, path string) pipeline.Outcome
}

// Config holds configuration for the daemon.
type Config struct {
	// Schedule is a cron expression or descriptor ("@every 5m") for full
	// passes. Empty disables scheduled passes.
	Schedule string

	// Watch enables regeneration of query files as they change.
	Watch bool

	// DebounceInterval is how long a change must settle before it is processed.
	// This batches rapid updates together
	DebounceInterval time.Duration

	// Concurrency bounds the files processed at once during a pass.
	Concurrency int

	// Observer, when set, receives every outcome and pass report.
	Observer pipeline.Observer

	// Logger for daemon activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		Concurrency:      config.DefaultConcurrency,
		Logger:           slog.Default(),
	}
}

// Daemon orchestrates scheduled passes and file watching.
type Daemon struct {
	root      string
	proc      Processor
	scheduler *pipeline.Scheduler
	config    *Config

	cron          *cron.Cron
	watcher       *FileWatcher
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// New creates a daemon over the query files below root.
//
// Use Start() to begin.
func New(root string, proc Processor, cfg *Config) (*Daemon, error) {
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if proc == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultConfig().DebounceInterval
	}

	d := &Daemon{
		root:        root,
		proc:        proc,
		config:      cfg,
		changeQueue: make(map[string]time.Time),
	}
	d.scheduler = pipeline.NewScheduler(proc, cfg.Concurrency)
	d.scheduler.Observer = cfg.Observer

	if cfg.Schedule != "" {
		cronLogger := cron.PrintfLogger(slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelInfo))
		d.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger)))
		if _, err := d.cron.AddFunc(cfg.Schedule, d.scheduledPass); err != nil {
			return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
	}

	if cfg.Watch {
		watcher, err := NewFileWatcher()
		if err != nil {
			return nil, err
		}
		d.watcher = watcher
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start performs the initial pass, then starts the schedule and the watcher.
// It blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Info("Starting daemon", "root", d.root, "schedule", d.config.Schedule, "watch", d.config.Watch)

	if _, err := d.RunPass(ctx); err != nil {
		return fmt.Errorf("initial pass failed: %w", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(d.root); err != nil {
			return err
		}
		d.config.Logger.Info("Watching for query changes", "root", d.root)

		d.wg.Add(2)
		go d.watchFileEvents()
		go d.processChangeQueue()
	}

	if d.cron != nil {
		d.cron.Start()
		d.config.Logger.Info("Scheduled passes enabled", "schedule", d.config.Schedule)
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Info("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon, waiting for a running pass.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.config.Logger.Info("Stopping daemon")
		d.cancel()

		if d.cron != nil {
			<-d.cron.Stop().Done()
		}
		if d.watcher != nil {
			if werr := d.watcher.Stop(); werr != nil {
				err = werr
			}
		}
		d.wg.Wait()

		d.config.Logger.Info("Daemon stopped")
	})
	return err
}

// RunPass scans the tree and processes every query file once.
func (d *Daemon) RunPass(ctx context.Context) (*pipeline.Report, error) {
	files, err := scanner.ScanSQLFiles(d.root)
	if err != nil {
		return nil, err
	}
	d.config.Logger.Info("Found SQL files", "count", len(files), "dir", d.root)

	ctx = logging.WithLogger(ctx, d.config.Logger)
	report := d.scheduler.Run(ctx, files)
	d.config.Logger.Info("Pass complete",
		"run_id", report.RunID,
		"generated", report.Generated,
		"fresh", report.Fresh,
		"locked", report.Locked,
		"failed", report.Failed,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}

func (d *Daemon) scheduledPass() {
	if d.ctx.Err() != nil {
		return
	}
	if _, err := d.RunPass(d.ctx); err != nil {
		d.config.Logger.Error("Scheduled pass failed", "error", err)
	}
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if event.Op == OpDelete {
				d.config.Logger.Debug("Query file removed", "path", event.Path)
				d.dequeueChange(event.Path)
				continue
			}

			d.config.Logger.Debug("File event", "op", event.Op, "path", event.Path)
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Warn("Watcher error", "error", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) dequeueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	delete(d.changeQueue, path)
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges regenerates files whose last event is older than the
// debounce interval.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var due []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		due = append(due, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	ctx := logging.WithLogger(d.ctx, d.config.Logger)
	for _, path := range due {
		if d.ctx.Err() != nil {
			return
		}
		d.config.Logger.Info("Processing change", "path", path)
		outcome := d.proc.Regenerate(ctx, path)
		if d.config.Observer != nil {
			d.config.Observer.FileDone("", outcome)
		}
	}
}

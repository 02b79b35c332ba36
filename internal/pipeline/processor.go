// Package pipeline turns query files into JSON documents.
//
// A Processor runs one file through the stages staleness check, lock,
// read and strip comments, execute, encode and atomic write, strictly in that
// order. A Scheduler fans a Processor out over many files with bounded
// concurrency; a failing file never stops the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fastsql2json/sql2json/internal/atomicfile"
	"github.com/fastsql2json/sql2json/internal/db"
	"github.com/fastsql2json/sql2json/internal/filelock"
	"github.com/fastsql2json/sql2json/internal/freshness"
	"github.com/fastsql2json/sql2json/internal/jsonenc"
	"github.com/fastsql2json/sql2json/internal/logging"
	"github.com/fastsql2json/sql2json/internal/sqltext"
)

// Executor runs cleaned, possibly multi-statement SQL. *db.DB implements it.
type Executor interface {
	Execute(ctx context.Context, query string) (db.ResultSet, error)
}

// IntervalFunc returns the refresh interval configured for a query path.
type IntervalFunc func(path string) (time.Duration, bool)

// Status is the terminal state of one file in a run.
type Status string

const (
	// StatusGenerated means the query ran and its output was replaced.
	StatusGenerated Status = "generated"
	// StatusFresh means the output was not stale and nothing ran.
	StatusFresh Status = "fresh"
	// StatusLocked means another worker or process held the file's lock.
	StatusLocked Status = "locked"
	// StatusFailed means a stage failed; Err says which.
	StatusFailed Status = "failed"
)

// Outcome is the result of processing one query file.
type Outcome struct {
	Path     string
	Output   string
	Status   Status
	Rows     int
	Err      error
	Duration time.Duration
}

// Category returns the error category of a failed or locked outcome.
func (o Outcome) Category() string {
	return Category(o.Err)
}

// DefaultFileMode is the permission of generated documents.
const DefaultFileMode os.FileMode = 0o644

// Processor runs the per-file pipeline. Exec is required; other fields have
// working defaults.
type Processor struct {
	Exec     Executor
	Policy   *freshness.Policy
	Interval IntervalFunc
	Writer   *atomicfile.Writer
	FileMode os.FileMode
}

// Process regenerates the output of path if it is stale.
func (p *Processor) Process(ctx context.Context, path string) Outcome {
	return p.run(ctx, path, false)
}

// Regenerate rebuilds the output of path regardless of its age.
func (p *Processor) Regenerate(ctx context.Context, path string) Outcome {
	return p.run(ctx, path, true)
}

func (p *Processor) run(ctx context.Context, path string, force bool) (out Outcome) {
	start := time.Now()
	out = Outcome{Path: path, Output: freshness.OutputPath(path)}
	logger := logging.FromContext(ctx).With("path", path)

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic while processing %s: %v", path, r)
		}
		out.Duration = time.Since(start)

		switch out.Status {
		case StatusGenerated:
			logger.Info("Generated JSON file", "output", out.Output, "rows", out.Rows, "duration", out.Duration)
		case StatusFresh:
			logger.Debug("Skipping file (not due for update)")
		case StatusLocked:
			logger.Warn("Skipping file (locked by another process)", "lock", filelock.Path(path))
		case StatusFailed:
			logger.Error("Failed to process file", "category", out.Category(), "error", out.Err)
		}
	}()

	if !force {
		interval, ok := p.interval(path)
		update, err := p.policy().ShouldUpdate(path, interval, ok)
		if err != nil {
			return fail(out, &IOError{Path: path, Op: "check freshness of", Err: err})
		}
		if !update {
			out.Status = StatusFresh
			return out
		}
	}

	lock, err := filelock.Acquire(path)
	if err != nil {
		if errors.Is(err, filelock.ErrLockUnavailable) {
			out.Status = StatusLocked
			out.Err = err
			return out
		}
		return fail(out, &IOError{Path: path, Op: "lock", Err: err})
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("Failed to release lock", "error", err)
		}
	}()

	// #nosec G304 - path comes from the directory scan
	raw, err := os.ReadFile(path)
	if err != nil {
		return fail(out, &IOError{Path: path, Op: "read", Err: err})
	}
	query := sqltext.StripComments(string(raw))

	rs, err := p.Exec.Execute(ctx, query)
	if err != nil {
		return fail(out, &QueryExecutionError{Path: path, Err: err})
	}

	doc, err := jsonenc.Encode(rs, jsonenc.RootName(path))
	if err != nil {
		return fail(out, err)
	}

	if err := p.writer().WriteFile(out.Output, doc, p.fileMode()); err != nil {
		return fail(out, err)
	}

	out.Status = StatusGenerated
	out.Rows = rs.RowCount()
	return out
}

func fail(out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	return out
}

func (p *Processor) interval(path string) (time.Duration, bool) {
	if p.Interval == nil {
		return 0, false
	}
	return p.Interval(path)
}

func (p *Processor) policy() *freshness.Policy {
	if p.Policy == nil {
		return &freshness.Policy{}
	}
	return p.Policy
}

func (p *Processor) writer() *atomicfile.Writer {
	if p.Writer == nil {
		return &atomicfile.Writer{}
	}
	return p.Writer
}

func (p *Processor) fileMode() os.FileMode {
	if p.FileMode == 0 {
		return DefaultFileMode
	}
	return p.FileMode
}

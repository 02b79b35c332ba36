package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fastsql2json/sql2json/internal/config"
	"github.com/fastsql2json/sql2json/internal/logging"
)

// DefaultConcurrency is the number of files processed at once.
const DefaultConcurrency = config.DefaultConcurrency

// Observer receives progress events from a Scheduler. Calls may arrive from
// several goroutines at once.
type Observer interface {
	FileDone(runID string, o Outcome)
	RunDone(r *Report)
}

// Report summarizes one pass over a set of files.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome // in input order

	Generated int
	Fresh     int
	Locked    int
	Failed    int
	Rows      int
}

// Total is the number of files in the pass.
func (r *Report) Total() int {
	return len(r.Outcomes)
}

// Failures returns the outcomes that failed.
func (r *Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

func (r *Report) tally() {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusGenerated:
			r.Generated++
			r.Rows += o.Rows
		case StatusFresh:
			r.Fresh++
		case StatusLocked:
			r.Locked++
		case StatusFailed:
			r.Failed++
		}
	}
}

// FileProcessor runs a single file. *Processor implements it.
type FileProcessor interface {
	Process(ctx context.Context, path string) Outcome
}

// Scheduler runs a FileProcessor over many files with at most Concurrency
// files in flight.
type Scheduler struct {
	Processor   FileProcessor
	Concurrency int
	Observer    Observer
}

// NewScheduler returns a scheduler; concurrency below 1 means DefaultConcurrency.
func NewScheduler(p FileProcessor, concurrency int) *Scheduler {
	return &Scheduler{Processor: p, Concurrency: concurrency}
}

// Run processes every path and waits for all of them. A failure in one file
// does not cancel the others. Run returns early only if ctx is cancelled, in
// which case files that never started are absent from the report.
func (s *Scheduler) Run(ctx context.Context, paths []string) *Report {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	logger := logging.FromContext(ctx).With("run_id", report.RunID)
	ctx = logging.WithLogger(ctx, logger)

	limit := s.Concurrency
	if limit < 1 {
		limit = DefaultConcurrency
	}
	logger.Debug("Starting run", "files", len(paths), "concurrency", limit)

	outcomes := make([]Outcome, len(paths))
	started := make([]bool, len(paths))

	// Plain errgroup: no derived context, so one failure never cancels siblings.
	var g errgroup.Group
	g.SetLimit(limit)

	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o := s.Processor.Process(ctx, path)
			outcomes[i] = o
			started[i] = true

			if s.Observer != nil {
				s.Observer.FileDone(report.RunID, o)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if started[i] {
			report.Outcomes = append(report.Outcomes, o)
		}
	}
	report.tally()
	report.Duration = time.Since(report.Started)

	if s.Observer != nil {
		s.Observer.RunDone(report)
	}
	return report
}

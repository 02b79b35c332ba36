package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsql2json/sql2json/internal/atomicfile"
	"github.com/fastsql2json/sql2json/internal/config"
	"github.com/fastsql2json/sql2json/internal/db"
	"github.com/fastsql2json/sql2json/internal/filelock"
	"github.com/fastsql2json/sql2json/internal/freshness"
)

// fakeExec returns one row per query and records what it ran.
type fakeExec struct {
	mu      sync.Mutex
	queries []string

	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeExec) Execute(_ context.Context, query string) (db.ResultSet, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if strings.Contains(query, "SELEC ") {
		return nil, errors.New("syntax error near 'SELEC'")
	}
	return db.ResultSet{{Columns: []string{"q"}, Rows: [][]any{{strings.TrimSpace(query)}}}}, nil
}

func (f *fakeExec) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func writeSQL(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestProcess_StripsCommentsAndWrites(t *testing.T) {
	dir := t.TempDir()
	path := writeSQL(t, dir, "kpi.sql", "-- header\nSELECT 1 /* inline */;")
	exec := &fakeExec{}
	p := &Processor{Exec: exec}

	out := p.Process(context.Background(), path)
	require.NoError(t, out.Err)
	assert.Equal(t, StatusGenerated, out.Status)
	assert.Equal(t, 1, out.Rows)
	assert.Equal(t, filepath.Join(dir, "kpi.json"), out.Output)

	require.Len(t, exec.queries, 1)
	assert.Equal(t, "\nSELECT 1 ;", exec.queries[0])

	data, err := os.ReadFile(out.Output)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kpi":[{"q":"SELECT 1 ;"}]}`, string(data))
	assert.FileExists(t, path+".lock")
}

func TestProcess_FreshOutputIsNotRerun(t *testing.T) {
	dir := t.TempDir()
	path := writeSQL(t, dir, "report.sql", "SELECT 1;")
	output := freshness.OutputPath(path)
	require.NoError(t, os.WriteFile(output, []byte(`{"report":[]}`), 0o644))
	tenMinutesAgo := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(output, tenMinutesAgo, tenMinutesAgo))

	exec := &fakeExec{}
	p := &Processor{
		Exec: exec,
		Interval: func(p string) (time.Duration, bool) {
			return 60 * time.Minute, p == path
		},
	}

	out := p.Process(context.Background(), path)
	assert.Equal(t, StatusFresh, out.Status)
	assert.NoError(t, out.Err)
	assert.Zero(t, exec.count())

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Equal(t, tenMinutesAgo.Unix(), info.ModTime().Unix(), "output must not be rewritten")

	out = p.Regenerate(context.Background(), path)
	assert.Equal(t, StatusGenerated, out.Status)
	assert.Equal(t, 1, exec.count())
}

func TestProcess_Locked(t *testing.T) {
	path := writeSQL(t, t.TempDir(), "kpi.sql", "SELECT 1;")
	held, err := filelock.Acquire(path)
	require.NoError(t, err)
	defer held.Release()

	exec := &fakeExec{}
	out := (&Processor{Exec: exec}).Process(context.Background(), path)

	assert.Equal(t, StatusLocked, out.Status)
	assert.Equal(t, CategoryLockUnavailable, out.Category())
	assert.Zero(t, exec.count())
	assert.NoFileExists(t, out.Output)
}

func TestProcess_QueryError(t *testing.T) {
	path := writeSQL(t, t.TempDir(), "bad.sql", "SELEC nonsense;")
	out := (&Processor{Exec: &fakeExec{}}).Process(context.Background(), path)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, CategoryQueryExecution, out.Category())

	var qe *QueryExecutionError
	require.True(t, errors.As(out.Err, &qe))
	assert.Equal(t, path, qe.Path)
	assert.Contains(t, qe.Error(), "SELEC")
	assert.NoFileExists(t, out.Output)

	// The lock is released even though the pipeline failed.
	lock, err := filelock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestProcess_IntegrityError(t *testing.T) {
	dir := t.TempDir()
	path := writeSQL(t, dir, "kpi.sql", "SELECT 1;")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kpi.json"), []byte("old"), 0o644))

	p := &Processor{Exec: &fakeExec{}, Writer: corruptingWriter()}
	out := p.Process(context.Background(), path)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, CategoryIntegrity, out.Category())

	data, err := os.ReadFile(filepath.Join(dir, "kpi.json"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestProcess_PanicIsContained(t *testing.T) {
	path := writeSQL(t, t.TempDir(), "kpi.sql", "SELECT 1;")
	out := (&Processor{Exec: panicExec{}}).Process(context.Background(), path)

	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Err.Error(), "boom")

	lock, err := filelock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func corruptingWriter() *atomicfile.Writer {
	return &atomicfile.Writer{ReadBack: func(string) ([]byte, error) {
		return []byte("corrupted"), nil
	}}
}

type panicExec struct{}

func (panicExec) Execute(context.Context, string) (db.ResultSet, error) { panic("boom") }

func TestCategory(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: &config.ConfigurationError{Err: errors.New("bad")}, want: CategoryConfiguration},
		{err: &db.ConnectError{Driver: "mysql", Err: errors.New("refused")}, want: CategoryDatabaseConnect},
		{err: &QueryExecutionError{Path: "a.sql", Err: errors.New("x")}, want: CategoryQueryExecution},
		{err: &atomicfile.WriteError{Path: "a.json", Op: "verify", Err: atomicfile.ErrIntegrity}, want: CategoryIntegrity},
		{err: &atomicfile.WriteError{Path: "a.json", Op: "rename", Err: os.ErrPermission}, want: CategoryIO},
		{err: filelock.ErrLockUnavailable, want: CategoryLockUnavailable},
		{err: &IOError{Path: "a.sql", Op: "read", Err: os.ErrNotExist}, want: CategoryIO},
		{err: errors.New("other"), want: CategoryInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Category(tt.err), "%v", tt.err)
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	files []Outcome
	runs  []*Report
}

func (r *recordingObserver) FileDone(_ string, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, o)
}

func (r *recordingObserver) RunDone(rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, rep)
}

func TestScheduler_ConcurrencyCap(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 12 {
		paths = append(paths, writeSQL(t, dir, filepath.Join("q", string(rune('a'+i))+".sql"), "SELECT 1;"))
	}

	exec := &fakeExec{delay: 20 * time.Millisecond}
	obs := &recordingObserver{}
	s := NewScheduler(&Processor{Exec: exec}, 3)
	s.Observer = obs

	report := s.Run(context.Background(), paths)

	assert.Equal(t, 12, report.Total())
	assert.Equal(t, 12, report.Generated)
	assert.LessOrEqual(t, exec.peak.Load(), int32(3))
	assert.Len(t, obs.files, 12)
	require.Len(t, obs.runs, 1)
	assert.Same(t, report, obs.runs[0])
	assert.NotEmpty(t, report.RunID)

	for i, o := range report.Outcomes {
		assert.Equal(t, paths[i], o.Path, "outcomes keep input order")
	}
}

func TestScheduler_DefaultConcurrency(t *testing.T) {
	s := NewScheduler(&Processor{Exec: &fakeExec{}}, 0)
	report := s.Run(context.Background(), nil)
	assert.Zero(t, report.Total())
	assert.Equal(t, 5, DefaultConcurrency)
}

func TestScheduler_CancelledContext(t *testing.T) {
	path := writeSQL(t, t.TempDir(), "kpi.sql", "SELECT 1;")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{}
	report := NewScheduler(&Processor{Exec: exec}, 2).Run(ctx, []string{path})
	assert.Zero(t, report.Total())
	assert.Zero(t, exec.count())
}

// End to end over SQLite: a fresh file, a stale-free file and a broken file
// in one pass.
func TestScheduler_EndToEnd(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default().Database
	cfg.Driver = config.DriverSQLite
	cfg.Database = filepath.Join(dir, "data.db")
	database, err := db.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer database.Close()

	_, err = database.RawDB().Exec(`CREATE TABLE t (id INTEGER, name TEXT)`)
	require.NoError(t, err)
	_, err = database.RawDB().Exec(`INSERT INTO t VALUES (1, 'a'), (2, 'b')`)
	require.NoError(t, err)

	kpi := writeSQL(t, dir, "sql/kpi.sql", "-- key figures\nSELECT id, name FROM t ORDER BY id;")
	report := writeSQL(t, dir, "sql/report.sql", "SELECT COUNT(*) AS n FROM t;")
	bad := writeSQL(t, dir, "sql/bad.sql", "SELEC id FROM t;")
	multi := writeSQL(t, dir, "sql/nested/multi.sql", `
/* two result sets */
SELECT name FROM t WHERE id = 1;
SELECT name FROM t WHERE id = 2;
`)

	reportJSON := freshness.OutputPath(report)
	require.NoError(t, os.WriteFile(reportJSON, []byte(`{"report":[{"n":0}]}`), 0o644))
	tenMinutesAgo := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(reportJSON, tenMinutesAgo, tenMinutesAgo))

	intervals := map[string]int64{report: 60}
	c := &config.Config{FileIntervals: intervals}

	p := &Processor{Exec: database, Interval: c.Interval}
	rep := NewScheduler(p, DefaultConcurrency).Run(context.Background(), []string{kpi, report, bad, multi})

	assert.Equal(t, 4, rep.Total())
	assert.Equal(t, 2, rep.Generated)
	assert.Equal(t, 1, rep.Fresh)
	assert.Equal(t, 1, rep.Failed)

	failures := rep.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, bad, failures[0].Path)
	assert.Equal(t, CategoryQueryExecution, failures[0].Category())
	assert.NoFileExists(t, freshness.OutputPath(bad))

	var doc map[string][]map[string]any
	data, err := os.ReadFile(freshness.OutputPath(kpi))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string][]map[string]any{
		"kpi": {
			{"id": float64(1), "name": "a"},
			{"id": float64(2), "name": "b"},
		},
	}, doc)

	data, err = os.ReadFile(reportJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"report":[{"n":0}]}`, string(data), "fresh output untouched")

	data, err = os.ReadFile(freshness.OutputPath(multi))
	require.NoError(t, err)
	assert.JSONEq(t, `{"multi":[{"name":"a"},{"name":"b"}]}`, string(data))
}

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "modify", OpModify.String())
	assert.Equal(t, "delete", OpDelete.String())
	assert.Equal(t, "unknown", EventOp(42).String())
}

func TestConvertEvent(t *testing.T) {
	fw := &FileWatcher{root: "./sql"}
	sep := string(filepath.Separator)

	tests := []struct {
		name   string
		event  fsnotify.Event
		want   FileEvent
		wantOK bool
	}{
		{
			name:   "create",
			event:  fsnotify.Event{Name: filepath.Join("sql", "kpi.sql"), Op: fsnotify.Create},
			want:   FileEvent{Path: "./sql" + sep + "kpi.sql", Op: OpCreate},
			wantOK: true,
		},
		{
			name:   "write in subdirectory",
			event:  fsnotify.Event{Name: filepath.Join("sql", "a", "b.sql"), Op: fsnotify.Write},
			want:   FileEvent{Path: "./sql" + sep + filepath.Join("a", "b.sql"), Op: OpModify},
			wantOK: true,
		},
		{
			name:   "remove",
			event:  fsnotify.Event{Name: filepath.Join("sql", "kpi.sql"), Op: fsnotify.Remove},
			want:   FileEvent{Path: "./sql" + sep + "kpi.sql", Op: OpDelete},
			wantOK: true,
		},
		{
			name:   "rename",
			event:  fsnotify.Event{Name: filepath.Join("sql", "kpi.sql"), Op: fsnotify.Rename},
			want:   FileEvent{Path: "./sql" + sep + "kpi.sql", Op: OpDelete},
			wantOK: true,
		},
		{name: "chmod ignored", event: fsnotify.Event{Name: filepath.Join("sql", "kpi.sql"), Op: fsnotify.Chmod}},
		{name: "json ignored", event: fsnotify.Event{Name: filepath.Join("sql", "kpi.json"), Op: fsnotify.Write}},
		{name: "upper-case extension ignored", event: fsnotify.Event{Name: filepath.Join("sql", "KPI.SQL"), Op: fsnotify.Write}},
		{name: "lock ignored", event: fsnotify.Event{Name: filepath.Join("sql", "kpi.sql.lock"), Op: fsnotify.Create}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := fw.convertEvent(tt.event)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFileWatcher_StartStop(t *testing.T) {
	root := t.TempDir()
	fw, err := NewFileWatcher()
	require.NoError(t, err)

	require.NoError(t, fw.Start(root))
	assert.True(t, fw.IsRunning())
	assert.Error(t, fw.Start(root), "second start fails")

	require.NoError(t, fw.Stop())
	assert.False(t, fw.IsRunning())
	require.NoError(t, fw.Stop())

	_, open := <-fw.Events()
	assert.False(t, open)
}

func TestFileWatcher_MissingRoot(t *testing.T) {
	fw, err := NewFileWatcher()
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.Start(filepath.Join(t.TempDir(), "missing")))
	assert.False(t, fw.IsRunning())
}

func TestFileWatcher_Events(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "nested"), 0o755))

	fw, err := NewFileWatcher()
	require.NoError(t, err)
	require.NoError(t, fw.Start(root))
	defer fw.Stop()

	path := filepath.Join(root, "nested", "kpi.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1;"), 0o644))

	select {
	case ev := <-fw.Events():
		assert.Equal(t, path, ev.Path)
		assert.Contains(t, []EventOp{OpCreate, OpModify}, ev.Op)
	case <-time.After(3 * time.Second):
		t.Fatal("no event for file in pre-existing subdirectory")
	}
}

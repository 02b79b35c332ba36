package atomicfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteFile_New(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "kpi.json")

	require.NoError(t, WriteFile(path, []byte(`{"kpi":[]}`), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"kpi":[]}`, string(got))
	assert.Equal(t, []string{"kpi.json"}, listDir(t, filepath.Dir(path)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	}
}

func TestWriteFile_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpi.json")
	require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0o644))

	require.NoError(t, WriteFile(path, []byte("new"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestWriteFile_IntegrityFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kpi.json")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	w := &Writer{ReadBack: func(name string) ([]byte, error) {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		return append(data[:len(data)-1:len(data)-1], 'X'), nil
	}}

	err := w.WriteFile(path, []byte("replacement"), 0o644)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIntegrity))

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, path, we.Path)
	assert.Equal(t, "verify", we.Op)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(got))
	assert.Equal(t, []string{"kpi.json"}, listDir(t, dir), "temp file must be removed")
}

func TestWriteFile_ReadBackError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kpi.json")

	w := &Writer{ReadBack: func(string) ([]byte, error) { return nil, errors.New("disk gone") }}
	err := w.WriteFile(path, []byte("data"), 0o644)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
	assert.NoFileExists(t, path)
	assert.Empty(t, listDir(t, dir))
}

func TestWriteFile_DirectoryError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := WriteFile(filepath.Join(blocker, "kpi.json"), []byte("x"), 0o644)

	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "create directory for", we.Op)
}

// A reader polling the target while it is rewritten must always see one of
// the complete versions.
func TestWriteFile_ConcurrentReaderSeesCompleteVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpi.json")

	versions := [][]byte{
		[]byte(strings.Repeat("a", 64*1024)),
		[]byte(strings.Repeat("b", 3)),
		[]byte(strings.Repeat("c", 128*1024)),
	}
	require.NoError(t, WriteFile(path, versions[0], 0o644))

	var (
		done    atomic.Bool
		bad     atomic.Int32
		wg      sync.WaitGroup
		samples atomic.Int32
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for !done.Load() {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			samples.Add(1)
			ok := false
			for _, v := range versions {
				if bytes.Equal(data, v) {
					ok = true
					break
				}
			}
			if !ok {
				bad.Add(1)
			}
		}
	}()

	for i := range 50 {
		require.NoError(t, WriteFile(path, versions[i%len(versions)], 0o644))
	}
	done.Store(true)
	wg.Wait()

	assert.Zero(t, bad.Load(), "reader observed a partial write")
}

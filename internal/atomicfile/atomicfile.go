// Package atomicfile replaces files so that readers only ever see the old or
// the new content in full.
package atomicfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrIntegrity is returned when the bytes read back from the temporary file
// differ from the bytes that were written.
var ErrIntegrity = errors.New("written content does not match")

// WriteError describes a failed replacement of Path. Op names the failing step.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer performs verified atomic replacements. The zero value is ready to use.
type Writer struct {
	// ReadBack reads the temporary file for verification; os.ReadFile when nil.
	ReadBack func(name string) ([]byte, error)
}

// WriteFile atomically replaces path with data using the default Writer.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	var w Writer
	return w.WriteFile(path, data, perm)
}

// WriteFile writes data to a temporary file next to path, syncs it, reads it
// back and compares it byte for byte, then renames it over path. On failure
// the temporary file is removed and path is left untouched.
func (w *Writer) WriteFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: path, Op: "create directory for", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Op: "create temp file for", Err: err}
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &WriteError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &WriteError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &WriteError{Path: path, Op: "close temp file for", Err: err}
	}

	got, err := w.read(tmpPath)
	if err != nil {
		return &WriteError{Path: path, Op: "verify", Err: err}
	}
	if !bytes.Equal(got, data) {
		return &WriteError{Path: path, Op: "verify", Err: ErrIntegrity}
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return &WriteError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &WriteError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

func (w *Writer) read(name string) ([]byte, error) {
	if w.ReadBack != nil {
		return w.ReadBack(name)
	}
	// #nosec G304 - temp file created above
	return os.ReadFile(name)
}

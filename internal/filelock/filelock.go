// Package filelock guards a query file with an exclusive, non-blocking
// advisory lock on a sidecar "<path>.lock" file.
//
// Lock files are created on demand and never removed; only the lock on them
// is released.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// Suffix is appended to the guarded path to name its lock file.
const Suffix = ".lock"

// ErrLockUnavailable is returned when another holder owns the lock.
var ErrLockUnavailable = errors.New("lock held by another process")

// Lock is an acquired lock. Release it on every exit path.
type Lock struct {
	path string
	f    *os.File
	once sync.Once
	err  error
}

// Path returns the lock file path.
func Path(guarded string) string {
	return guarded + Suffix
}

// Acquire opens (creating if needed) the lock file for guarded and takes an
// exclusive lock without waiting. Contention yields ErrLockUnavailable.
func Acquire(guarded string) (*Lock, error) {
	path := Path(guarded)

	// #nosec G304 - lock path derives from a scanned query file
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := lockFile(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLockUnavailable) {
			return nil, fmt.Errorf("%s: %w", path, ErrLockUnavailable)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	return &Lock{path: path, f: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		uerr := unlockFile(l.f)
		cerr := l.f.Close()
		if uerr != nil {
			l.err = fmt.Errorf("failed to unlock %s: %w", l.path, uerr)
		} else if cerr != nil {
			l.err = fmt.Errorf("failed to close %s: %w", l.path, cerr)
		}
	})
	return l.err
}

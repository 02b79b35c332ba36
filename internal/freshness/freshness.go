// Package freshness decides whether a query's JSON output must be rebuilt.
package freshness

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OutputExt is the extension of generated documents.
const OutputExt = ".json"

// OutputPath returns the JSON file that belongs to the query file at sqlPath.
func OutputPath(sqlPath string) string {
	return strings.TrimSuffix(sqlPath, filepath.Ext(sqlPath)) + OutputExt
}

// Policy evaluates output age against per-file refresh intervals.
type Policy struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// ShouldUpdate reports whether the output of sqlPath has to be regenerated.
//
// A missing output is always generated. Without a configured interval the
// output is always regenerated. Otherwise it is regenerated once its age, in
// whole seconds, exceeds interval.
func (p *Policy) ShouldUpdate(sqlPath string, interval time.Duration, hasInterval bool) (bool, error) {
	out := OutputPath(sqlPath)

	info, err := os.Stat(out)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", out, err)
	}

	if !hasInterval {
		return true, nil
	}

	age := p.now().Unix() - info.ModTime().Unix()
	return age > int64(interval/time.Second), nil
}

func (p *Policy) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

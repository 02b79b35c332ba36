// Package scanner discovers query files below a start directory.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension is the exact, case-sensitive extension of query files.
const Extension = ".sql"

// ScanSQLFiles recursively collects the regular files below root whose
// extension is exactly ".sql". Returned paths keep root as their prefix, so
// "./reports" yields "./reports/kpi.sql", and are sorted.
//
// Entries that cannot be read are skipped; only an unreadable root is an error.
func ScanSQLFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read start directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("start directory %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(d.Name()) != Extension {
			return nil
		}

		if rooted, ok := RootedPath(root, path); ok {
			files = append(files, rooted)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// RootedPath re-expresses path, which lies below root, with root's spelling
// kept as its prefix. filepath.Join would clean "./sql" down to "sql", and
// configured interval keys are matched against the uncleaned form.
func RootedPath(root, path string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	sep := string(filepath.Separator)
	return strings.TrimSuffix(root, sep) + sep + rel, true
}

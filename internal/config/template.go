package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const templateHeader = `# sql2json configuration
#
# Every *.sql file below app.start_dir is executed and its result written to a
# sibling *.json file. Files listed under [file_intervals] are only re-run when
# their JSON output is older than the given number of minutes; all other files
# are regenerated on every run.
#
# Any value can be overridden from the environment, e.g. SQL2JSON_DATABASE_PASSWORD.

`

// Encode writes cfg in the format implied by path's extension.
func Encode(w io.Writer, cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		if _, err := io.WriteString(w, templateHeader); err != nil {
			return err
		}
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode TOML: %w", err)
		}
		return nil
	}
}

// WriteTemplate creates a starter configuration file at path.
// It refuses to replace an existing file unless overwrite is set.
func WriteTemplate(path string, cfg *Config, overwrite bool) error {
	if cfg == nil {
		cfg = Default()
	}
	if cfg.FileIntervals == nil {
		cfg.FileIntervals = map[string]int64{}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}

	// #nosec G304 - path comes from the command line
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := Encode(f, cfg, path); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close config file: %w", err)
	}
	return nil
}

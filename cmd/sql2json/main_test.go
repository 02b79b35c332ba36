package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsql2json/sql2json/internal/config"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

// resetFlag undoes a flag value set by a previous Execute.
func resetFlag(t *testing.T, name string) {
	t.Helper()
	t.Cleanup(func() {
		f := rootCmd.PersistentFlags().Lookup(name)
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	})
}

func writeSQLiteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `[database]
driver = "sqlite"
database = "` + filepath.ToSlash(filepath.Join(dir, "app.db")) + `"
password = "hunter2"

[app]
start_dir = "queries"

[file_intervals]
"queries/kpi.sql" = 60
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestConfigInit(t *testing.T) {
	resetFlag(t, "config")
	path := filepath.Join(t.TempDir(), "sql2json.toml")

	out := execute(t, "config", "init", "--config", path)
	assert.Contains(t, out, path)

	cfg, err := config.Read(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Database.Driver, cfg.Database.Driver)
	assert.Equal(t, config.DefaultConcurrency, cfg.App.Concurrency)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestConfigInit_YAML(t *testing.T) {
	resetFlag(t, "config")
	path := filepath.Join(t.TempDir(), "sql2json.yaml")

	execute(t, "config", "init", "--config", path)

	cfg, err := config.Read(path)
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.App.StartDir)
}

func TestConfigShow_MasksPassword(t *testing.T) {
	resetFlag(t, "config")
	path := writeSQLiteConfig(t)

	out := execute(t, "config", "show", "--config", path)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")
	assert.Contains(t, out, `start_dir = "queries"`)
	assert.Contains(t, out, `"queries/kpi.sql" = 60`)
}

func TestConfigShow_Overrides(t *testing.T) {
	resetFlag(t, "config")
	resetFlag(t, "start-dir")
	path := writeSQLiteConfig(t)
	t.Setenv("SQL2JSON_APP_CONCURRENCY", "9")

	out := execute(t, "config", "show", "--config", path, "--start-dir", "reports")
	assert.Contains(t, out, `start_dir = "reports"`)
	assert.Contains(t, out, "concurrency = 9")
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	assert.Regexp(t, `^sql2json dev \(`, out)
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, validatePort(""))
	assert.NoError(t, validatePort("5432"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("70000"))
	assert.Error(t, validatePort("pg"))
}

func TestCommandGroups(t *testing.T) {
	for _, name := range []string{"run", "serve", "config"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.NotEmpty(t, cmd.GroupID, name)
	}
}

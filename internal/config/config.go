// Package config loads the sql2json configuration file.
//
// The file is TOML by default (config.toml) and may also be YAML when its
// extension is .yaml or .yml. Values from the environment (SQL2JSON_*) and
// explicitly set command-line flags override the file through viper.
//
// Example config.toml:
//
//	[database]
//	driver = "mysql"
//	host = "localhost"
//	port = 3306
//	user = "report"
//	password = "secret"
//	database = "analytics"
//
//	[app]
//	start_dir = "./queries"
//
//	[file_intervals]
//	"./queries/daily/kpi.sql" = 60
//
// Keys under [file_intervals] are matched against discovered file paths
// verbatim; they are never cleaned, lower-cased or made absolute.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config.toml"

// DefaultConcurrency is the number of query files processed at once.
const DefaultConcurrency = 5

// Config is the complete sql2json configuration.
type Config struct {
	Database      Database         `toml:"database" yaml:"database"`
	App           App              `toml:"app" yaml:"app"`
	FileIntervals map[string]int64 `toml:"file_intervals" yaml:"file_intervals"`
	Log           Log              `toml:"log" yaml:"log"`
	Serve         Serve            `toml:"serve" yaml:"serve"`
}

// Database holds connection settings for the query backend.
type Database struct {
	Driver   string            `toml:"driver" yaml:"driver"`
	Host     string            `toml:"host" yaml:"host"`
	Port     int               `toml:"port" yaml:"port"`
	User     string            `toml:"user" yaml:"user"`
	Password string            `toml:"password" yaml:"password"`
	Database string            `toml:"database" yaml:"database"`
	DSN      string            `toml:"dsn,omitempty" yaml:"dsn,omitempty"`
	Params   map[string]string `toml:"params,omitempty" yaml:"params,omitempty"`

	MaxOpenConns    int           `toml:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `toml:"connect_timeout" yaml:"connect_timeout"`
}

// App holds settings for file discovery and processing.
type App struct {
	StartDir    string `toml:"start_dir" yaml:"start_dir"`
	Concurrency int    `toml:"concurrency" yaml:"concurrency"`
}

// Log controls logging output.
type Log struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	File       string `toml:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// Serve holds settings for the long-running serve command.
type Serve struct {
	// Schedule is a cron spec ("@every 5m", "*/10 * * * *") for full passes.
	Schedule string `toml:"schedule,omitempty" yaml:"schedule,omitempty"`
	// Watch re-processes .sql files as soon as they change on disk.
	Watch bool `toml:"watch" yaml:"watch"`
	// DebounceInterval batches rapid file changes together.
	DebounceInterval time.Duration `toml:"debounce_interval" yaml:"debounce_interval"`
	// DashboardHost is the interface the dashboard binds; empty means all.
	DashboardHost string `toml:"dashboard_host" yaml:"dashboard_host"`
	// DashboardPort enables the websocket event dashboard when non-zero.
	DashboardPort int `toml:"dashboard_port" yaml:"dashboard_port"`
}

// ConfigurationError reports an unreadable or invalid configuration.
// It is always fatal.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Database: Database{
			Driver:          DriverMySQL,
			Host:            "localhost",
			Port:            3306,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  10 * time.Second,
		},
		App: App{
			StartDir:    ".",
			Concurrency: DefaultConcurrency,
		},
		Log: Log{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Serve: Serve{
			DebounceInterval: 500 * time.Millisecond,
			DashboardHost:    "127.0.0.1",
		},
	}
}

// Read decodes the configuration file at path on top of Default().
// The format is chosen by extension: .yaml/.yml is YAML, anything else TOML.
func Read(path string) (*Config, error) {
	// #nosec G304 - path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	cfg := Default()
	portSet := false

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("failed to parse YAML: %w", err)}
		}
		var probe struct {
			Database map[string]any `yaml:"database"`
		}
		if err := yaml.Unmarshal(data, &probe); err == nil {
			_, portSet = probe.Database["port"]
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("failed to parse TOML: %w", err)}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("unknown key %q", undecoded[0].String())}
		}
		portSet = md.IsDefined("database", "port")
	}

	if !portSet {
		cfg.Database.Port = DefaultPort(cfg.Database.Driver)
	}
	return cfg, nil
}

// DefaultPort returns the conventional port for driver, or 0 when the driver
// does not use the network.
func DefaultPort(driver string) int {
	switch driver {
	case DriverMySQL:
		return 3306
	case DriverPostgres:
		return 5432
	default:
		return 0
	}
}

// Validate checks that the configuration can be used for a run.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.DSN == "" {
			if c.Database.Host == "" {
				errs = append(errs, errors.New("database.host is required"))
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Errorf("database.port must be between 1 and 65535 (got %d)", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, errors.New("database.database is required"))
			}
		}
	case DriverSQLite:
		if c.Database.Database == "" && c.Database.DSN == "" {
			errs = append(errs, errors.New("database.database (file path) is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be one of %s, %s, %s (got %q)",
			DriverMySQL, DriverPostgres, DriverSQLite, c.Database.Driver))
	}

	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, errors.New("database.max_open_conns must be >= 1"))
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("database.max_idle_conns must be between 0 and max_open_conns"))
	}
	if c.App.StartDir == "" {
		errs = append(errs, errors.New("app.start_dir is required"))
	}
	if c.App.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("app.concurrency must be >= 1 (got %d)", c.App.Concurrency))
	}
	for path, minutes := range c.FileIntervals {
		if minutes < 0 {
			errs = append(errs, fmt.Errorf("file_intervals[%q] must not be negative", path))
		}
	}

	if len(errs) > 0 {
		return &ConfigurationError{Err: errors.Join(errs...)}
	}
	return nil
}

// Interval returns the refresh interval configured for path.
// The lookup is an exact string match.
func (c *Config) Interval(path string) (time.Duration, bool) {
	if c.FileIntervals == nil {
		return 0, false
	}
	minutes, ok := c.FileIntervals[path]
	if !ok {
		return 0, false
	}
	return time.Duration(minutes) * time.Minute, true
}

// Redacted returns a copy of c that is safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Database.Password != "" {
		cp.Database.Password = "********"
	}
	if cp.Database.DSN != "" {
		cp.Database.DSN = "********"
	}
	return &cp
}

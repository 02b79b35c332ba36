package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. SQL2JSON_DATABASE_PASSWORD.
const EnvPrefix = "SQL2JSON"

// overridable lists the keys that may come from the environment or flags.
var overridable = []string{
	"database.driver",
	"database.host",
	"database.port",
	"database.user",
	"database.password",
	"database.database",
	"database.dsn",
	"app.start_dir",
	"app.concurrency",
	"log.level",
	"log.format",
	"log.file",
	"serve.schedule",
	"serve.watch",
	"serve.dashboard_host",
	"serve.dashboard_port",
}

// NewViper returns a viper instance reading SQL2JSON_* environment variables.
// Callers bind command-line flags to it with BindPFlag using the dotted keys
// above; only flags that were explicitly set take effect.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the file at path, applies overrides from v and validates the
// result. A nil v means no overrides.
func Load(path string, v *viper.Viper) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if v != nil {
		ApplyOverrides(cfg, v)
	}
	if err := cfg.Validate(); err != nil {
		if ce, ok := err.(*ConfigurationError); ok {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides copies every key that is set in v onto cfg.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	for _, key := range overridable {
		if !v.IsSet(key) {
			continue
		}
		switch key {
		case "database.driver":
			cfg.Database.Driver = v.GetString(key)
		case "database.host":
			cfg.Database.Host = v.GetString(key)
		case "database.port":
			cfg.Database.Port = v.GetInt(key)
		case "database.user":
			cfg.Database.User = v.GetString(key)
		case "database.password":
			cfg.Database.Password = v.GetString(key)
		case "database.database":
			cfg.Database.Database = v.GetString(key)
		case "database.dsn":
			cfg.Database.DSN = v.GetString(key)
		case "app.start_dir":
			cfg.App.StartDir = v.GetString(key)
		case "app.concurrency":
			cfg.App.Concurrency = v.GetInt(key)
		case "log.level":
			cfg.Log.Level = v.GetString(key)
		case "log.format":
			cfg.Log.Format = v.GetString(key)
		case "log.file":
			cfg.Log.File = v.GetString(key)
		case "serve.schedule":
			cfg.Serve.Schedule = v.GetString(key)
		case "serve.watch":
			cfg.Serve.Watch = v.GetBool(key)
		case "serve.dashboard_host":
			cfg.Serve.DashboardHost = v.GetString(key)
		case "serve.dashboard_port":
			cfg.Serve.DashboardPort = v.GetInt(key)
		}
	}
}

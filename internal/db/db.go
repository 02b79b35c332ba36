// Package db runs query files against the configured relational backend.
//
// A DB wraps a database/sql pool. Every Execute call borrows a single
// connection for the whole query text, so session-scoped constructs
// (variables, temporary tables) behave as they would in an interactive
// client, and no connection is ever shared by two concurrent executions.
//
// Three backends are supported:
//   - mysql: go-sql-driver/mysql with multiStatements enabled
//   - postgres: pgx through its database/sql adapter, simple query protocol
//   - sqlite: the embedded ncruces/go-sqlite3 driver
//
// Multi-statement text yields one ResultGroup per statement that returns
// columns; statements such as SET or INSERT contribute no group.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fastsql2json/sql2json/internal/config"
)

// dialect adapts one backend to the DB API.
type dialect interface {
	driverName() string
	dsn(cfg config.Database) (string, error)
	versionQuery() string
	execute(ctx context.Context, conn *sql.Conn, query string) (ResultSet, error)
}

func lookupDialect(driver string) (dialect, error) {
	switch driver {
	case config.DriverMySQL, "":
		return mysqlDialect{}, nil
	case config.DriverPostgres:
		return postgresDialect{}, nil
	case config.DriverSQLite:
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// ConnectError reports that the connection pool could not be established.
// It is fatal for a run.
type ConnectError struct {
	Driver string
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s database %s: %v", e.Driver, e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DB is the shared connection pool used by all pipeline workers.
type DB struct {
	conn    *sql.DB
	dialect dialect
	driver  string
	target  string
}

// Open creates the connection pool described by cfg and verifies it with a
// ping bounded by cfg.ConnectTimeout.
//
// The caller MUST call Close() when done.
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, &ConnectError{Driver: cfg.Driver, Target: target(cfg), Err: err}
	}

	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, &ConnectError{Driver: cfg.Driver, Target: target(cfg), Err: err}
	}

	conn, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, &ConnectError{Driver: cfg.Driver, Target: target(cfg), Err: fmt.Errorf("failed to open database: %w", err)}
	}

	// Set connection pool settings
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Driver: cfg.Driver, Target: target(cfg), Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	return &DB{
		conn:    conn,
		dialect: d,
		driver:  d.driverName(),
		target:  target(cfg),
	}, nil
}

func target(cfg config.Database) string {
	switch {
	case cfg.Driver == config.DriverSQLite:
		return cfg.Database
	case cfg.DSN != "":
		return "(dsn)"
	default:
		return fmt.Sprintf("%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
	}
}

// RawDB returns the underlying sql.DB connection pool.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Target describes the connected database for log messages.
func (db *DB) Target() string {
	return db.target
}

// Close closes every pooled connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// Version returns the server version string.
func (db *DB) Version(ctx context.Context) (string, error) {
	var version sql.NullString
	if err := db.conn.QueryRowContext(ctx, db.dialect.versionQuery()).Scan(&version); err != nil {
		return "", fmt.Errorf("failed to query server version: %w", err)
	}
	if !version.Valid || version.String == "" {
		return "unknown", nil
	}
	return version.String, nil
}

// Execute runs query, which may contain several ;-separated statements, on a
// single pooled connection and returns the result groups in statement order.
func (db *DB) Execute(ctx context.Context, query string) (ResultSet, error) {
	if db.conn == nil {
		return nil, errors.New("database is closed")
	}

	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	rs, err := db.dialect.execute(ctx, conn, query)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

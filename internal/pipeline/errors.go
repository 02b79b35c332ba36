package pipeline

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fastsql2json/sql2json/internal/atomicfile"
	"github.com/fastsql2json/sql2json/internal/config"
	"github.com/fastsql2json/sql2json/internal/db"
	"github.com/fastsql2json/sql2json/internal/filelock"
)

// Error categories reported in logs and run summaries.
const (
	CategoryConfiguration   = "ConfigurationError"
	CategoryDatabaseConnect = "DatabaseConnectError"
	CategoryQueryExecution  = "QueryExecutionError"
	CategoryIntegrity       = "IntegrityError"
	CategoryLockUnavailable = "LockUnavailableError"
	CategoryIO              = "IOError"
	CategoryInternal        = "InternalError"
)

// QueryExecutionError reports that a query file's SQL failed on the server.
type QueryExecutionError struct {
	Path string
	Err  error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query %s failed: %v", e.Path, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// IOError reports a filesystem failure while handling a query file.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Category names the taxonomy bucket of err, or "" for nil.
func Category(err error) string {
	if err == nil {
		return ""
	}

	var (
		cfgErr   *config.ConfigurationError
		connErr  *db.ConnectError
		queryErr *QueryExecutionError
		ioErr    *IOError
		writeErr *atomicfile.WriteError
		pathErr  *fs.PathError
	)
	switch {
	case errors.As(err, &cfgErr):
		return CategoryConfiguration
	case errors.As(err, &connErr):
		return CategoryDatabaseConnect
	case errors.As(err, &queryErr):
		return CategoryQueryExecution
	case errors.Is(err, atomicfile.ErrIntegrity):
		return CategoryIntegrity
	case errors.Is(err, filelock.ErrLockUnavailable):
		return CategoryLockUnavailable
	case errors.As(err, &ioErr), errors.As(err, &writeErr), errors.As(err, &pathErr):
		return CategoryIO
	default:
		return CategoryInternal
	}
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/fastsql2json/sql2json/internal/config"
)

type sqliteDialect struct{}

func (sqliteDialect) driverName() string   { return "sqlite3" }
func (sqliteDialect) versionQuery() string { return "SELECT sqlite_version()" }

func (sqliteDialect) dsn(cfg config.Database) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	// Format for embedded mode: file:path
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", cfg.Database), nil
}

// execute prepares and steps each statement in turn on the raw SQLite
// connection; database/sql itself rejects multi-statement queries here.
func (sqliteDialect) execute(ctx context.Context, conn *sql.Conn, query string) (ResultSet, error) {
	var rs ResultSet
	err := conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected sqlite driver connection %T", driverConn)
		}
		raw := c.Raw()

		rest := query
		for strings.TrimSpace(rest) != "" {
			if err := ctx.Err(); err != nil {
				return err
			}

			stmt, tail, err := raw.Prepare(rest)
			if err != nil {
				return err
			}
			if stmt == nil {
				break
			}

			group, hasColumns, err := stepStatement(stmt)
			if cerr := stmt.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if hasColumns {
				rs = append(rs, group)
			}

			if tail == rest {
				break
			}
			rest = tail
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func stepStatement(stmt *sqlite3.Stmt) (ResultGroup, bool, error) {
	n := stmt.ColumnCount()
	group := ResultGroup{Columns: make([]string, n)}
	for i := range n {
		group.Columns[i] = stmt.ColumnName(i)
	}

	for stmt.Step() {
		vals := make([]any, n)
		for i := range n {
			switch stmt.ColumnType(i) {
			case sqlite3.INTEGER:
				vals[i] = stmt.ColumnInt64(i)
			case sqlite3.FLOAT:
				vals[i] = stmt.ColumnFloat(i)
			case sqlite3.TEXT:
				vals[i] = stmt.ColumnText(i)
			case sqlite3.BLOB:
				vals[i] = stmt.ColumnBlob(i, nil)
			default:
				vals[i] = nil
			}
		}
		group.Rows = append(group.Rows, vals)
	}
	if err := stmt.Err(); err != nil {
		return ResultGroup{}, false, err
	}

	return group, n > 0, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/fastsql2json/sql2json/internal/config"
)

type mysqlDialect struct{}

func (mysqlDialect) driverName() string   { return "mysql" }
func (mysqlDialect) versionQuery() string { return "SELECT VERSION()" }

func (mysqlDialect) dsn(cfg config.Database) (string, error) {
	var mc *mysql.Config
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Database
		mc.Timeout = 10 * time.Second
		mc.ReadTimeout = 10 * time.Second
		mc.WriteTimeout = 10 * time.Second
	}

	// Query files may hold several statements, and DATE columns are decoded
	// into time.Time so they can be normalized to YYYY-MM-DD.
	mc.MultiStatements = true
	mc.ParseTime = true
	if len(cfg.Params) > 0 {
		if mc.Params == nil {
			mc.Params = make(map[string]string, len(cfg.Params))
		}
		for k, v := range cfg.Params {
			mc.Params[k] = v
		}
	}

	return mc.FormatDSN(), nil
}

func (mysqlDialect) execute(ctx context.Context, conn *sql.Conn, query string) (ResultSet, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return readResultSets(rows, normalizeMySQL)
}

// normalizeMySQL maps driver values onto the types the encoder understands.
func normalizeMySQL(typeName string, v any) any {
	switch strings.ToUpper(typeName) {
	case "DATE":
		if t, ok := v.(time.Time); ok {
			return DateOf(t)
		}
	case "TIME":
		if b, ok := v.([]byte); ok {
			if tod, err := ParseTimeOfDay(string(b)); err == nil {
				return tod
			}
		}
	}
	return v
}

// readResultSets drains rows, advancing through every result set with
// NextResultSet. Result sets without columns are dropped.
func readResultSets(rows *sql.Rows, normalize func(typeName string, v any) any) (ResultSet, error) {
	var rs ResultSet
	for {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read columns: %w", err)
		}

		if len(cols) > 0 {
			types, err := rows.ColumnTypes()
			if err != nil {
				return nil, fmt.Errorf("failed to read column types: %w", err)
			}

			group := ResultGroup{Columns: cols}
			for rows.Next() {
				vals := make([]any, len(cols))
				ptrs := make([]any, len(cols))
				for i := range vals {
					ptrs[i] = &vals[i]
				}
				if err := rows.Scan(ptrs...); err != nil {
					return nil, fmt.Errorf("failed to scan row: %w", err)
				}
				for i, v := range vals {
					if v != nil {
						vals[i] = normalize(types[i].DatabaseTypeName(), v)
					}
				}
				group.Rows = append(group.Rows, vals)
			}
			if err := rows.Err(); err != nil {
				return nil, err
			}
			rs = append(rs, group)
		}

		if !rows.NextResultSet() {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/fastsql2json/sql2json/internal/config"
)

type postgresDialect struct{}

func (postgresDialect) driverName() string   { return "pgx" }
func (postgresDialect) versionQuery() string { return "SELECT version()" }

func (postgresDialect) dsn(cfg config.Database) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}

	q := url.Values{}
	q.Set("connect_timeout", "10")
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// execute sends the whole text through the simple query protocol, which is
// the only way PostgreSQL accepts several statements in one round trip. The
// pgx connection is borrowed from the database/sql pool for the duration.
func (postgresDialect) execute(ctx context.Context, conn *sql.Conn, query string) (ResultSet, error) {
	var rs ResultSet
	err := conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver connection %T", driverConn)
		}

		results, err := sc.Conn().PgConn().Exec(ctx, query).ReadAll()
		if err != nil {
			return err
		}

		for _, r := range results {
			if r.Err != nil {
				return r.Err
			}
			if len(r.FieldDescriptions) == 0 {
				continue
			}
			rs = append(rs, pgGroup(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func pgGroup(r *pgconn.Result) ResultGroup {
	group := ResultGroup{Columns: make([]string, len(r.FieldDescriptions))}
	for i, fd := range r.FieldDescriptions {
		group.Columns[i] = fd.Name
	}

	for _, raw := range r.Rows {
		vals := make([]any, len(raw))
		for i, b := range raw {
			vals[i] = pgValue(r.FieldDescriptions[i].DataTypeOID, b)
		}
		group.Rows = append(group.Rows, vals)
	}
	return group
}

// pgValue converts one text-format value. Numeric types stay textual so the
// encoder applies the same number heuristic as for other backends.
func pgValue(oid uint32, b []byte) any {
	if b == nil {
		return nil
	}
	s := string(b)

	switch oid {
	case pgtype.BoolOID:
		return s == "t"
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case pgtype.DateOID:
		if d, err := ParseDate(s); err == nil {
			return d
		}
	case pgtype.TimeOID:
		if t, err := ParseTimeOfDay(s); err == nil {
			return t
		}
	}
	return b
}

// Package store opens the SQL database shared by the response cache, the
// error log and the ingestion tables.
//
// SQLite (modernc.org/sqlite) is the default; PostgreSQL is reached through
// the pgx database/sql driver. Queries are written with "?" placeholders and
// rebound per dialect.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp column,
// so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

var (
	// ErrUnknownDriver indicates an unsupported database driver name
	ErrUnknownDriver = errors.New("unknown database driver")

	// ErrInvalidName indicates a client name that cannot be used in a table name
	ErrInvalidName = errors.New("invalid client name: must be 1-48 lowercase letters, digits or underscores")
)

// namePattern restricts client names that end up in table identifiers.
var namePattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// Dialect captures the few SQL differences between the supported databases.
type Dialect struct {
	Name       string
	driverName string
	types      map[string]string
}

var (
	sqliteDialect = Dialect{
		Name:       DriverSQLite,
		driverName: "sqlite",
		types: map[string]string{
			"{{id}}":     "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{blob}}":   "BLOB",
			"{{float}}":  "REAL",
			"{{bigint}}": "INTEGER",
		},
	}
	postgresDialect = Dialect{
		Name:       DriverPostgres,
		driverName: "pgx",
		types: map[string]string{
			"{{id}}":     "BIGSERIAL PRIMARY KEY",
			"{{blob}}":   "BYTEA",
			"{{float}}":  "DOUBLE PRECISION",
			"{{bigint}}": "BIGINT",
		},
	}
)

// Rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (d Dialect) Rebind(query string) string {
	if d.Name != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Render substitutes the column type tokens ({{id}}, {{blob}}, {{float}},
// {{bigint}}) in a DDL template.
func (d Dialect) Render(ddl string) string {
	for token, typ := range d.types {
		ddl = strings.ReplaceAll(ddl, token, typ)
	}
	return ddl
}

// DB is a database handle plus its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open opens the database. For SQLite the dsn is a file path; WAL mode and a
// busy timeout are applied to every pooled connection.
func Open(driver, dsn string) (*DB, error) {
	var d Dialect
	switch driver {
	case "", DriverSQLite:
		d = sqliteDialect
		dsn = sqliteDSN(dsn)
	case DriverPostgres, "pgx":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d.Name, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d.Name, err)
	}

	return &DB{DB: db, Dialect: d}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// ExecSchema renders and executes each DDL statement in order.
func (db *DB) ExecSchema(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, db.Dialect.Render(stmt)); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

// Exec runs a "?" query after rebinding.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, db.Dialect.Rebind(query), args...)
}

// Query runs a "?" query after rebinding.
func (db *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.QueryContext(ctx, db.Dialect.Rebind(query), args...)
}

// QueryRow runs a "?" query after rebinding.
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.QueryRowContext(ctx, db.Dialect.Rebind(query), args...)
}

// ClientTable returns the per-client table name "<client>_<suffix>".
func ClientTable(client, suffix string) (string, error) {
	if !namePattern.MatchString(client) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, client)
	}
	return client + "_" + suffix, nil
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout (or RFC 3339) timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// NullTime converts an optional time to a nullable column value.
func NullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// IsUniqueViolation reports whether err is a unique-constraint failure on
// either supported database.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

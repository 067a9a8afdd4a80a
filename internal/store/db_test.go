package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "store_test.db")
}

func TestOpenCreatesFile(t *testing.T) {
	path := tempDBPath(t)
	db, err := Open(DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("database file should exist after Open")
	}
	if db.Dialect.Name != DriverSQLite {
		t.Errorf("Dialect = %q, want sqlite", db.Dialect.Name)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("err = %v, want ErrUnknownDriver", err)
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c IN (?, ?)"

	if got := sqliteDialect.Rebind(q); got != q {
		t.Errorf("sqlite Rebind changed query: %s", got)
	}
	want := "SELECT a FROM t WHERE b = $1 AND c IN ($2, $3)"
	if got := postgresDialect.Rebind(q); got != want {
		t.Errorf("postgres Rebind = %s, want %s", got, want)
	}
}

func TestRender(t *testing.T) {
	ddl := "CREATE TABLE x (id {{id}}, body {{blob}}, n {{bigint}}, f {{float}})"

	if got := sqliteDialect.Render(ddl); got != "CREATE TABLE x (id INTEGER PRIMARY KEY AUTOINCREMENT, body BLOB, n INTEGER, f REAL)" {
		t.Errorf("sqlite Render = %s", got)
	}
	if got := postgresDialect.Render(ddl); got != "CREATE TABLE x (id BIGSERIAL PRIMARY KEY, body BYTEA, n BIGINT, f DOUBLE PRECISION)" {
		t.Errorf("postgres Render = %s", got)
	}
}

func TestExecSchemaAndQuery(t *testing.T) {
	db, err := Open(DriverSQLite, tempDBPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	err = db.ExecSchema(ctx, `CREATE TABLE IF NOT EXISTS things (id {{id}}, name TEXT NOT NULL UNIQUE)`)
	if err != nil {
		t.Fatalf("ExecSchema: %v", err)
	}

	if _, err := db.Exec(ctx, "INSERT INTO things (name) VALUES (?)", "a"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.Exec(ctx, "INSERT INTO things (name) VALUES (?)", "a")
	if !IsUniqueViolation(err) {
		t.Errorf("duplicate insert err = %v, want unique violation", err)
	}

	var n int
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM things WHERE name = ?", "a").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestIsUniqueViolationPostgres(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.UniqueViolation}) {
		t.Error("expected pg unique violation to match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.NotNullViolation}) {
		t.Error("not-null violation should not match")
	}
	if IsUniqueViolation(nil) {
		t.Error("nil should not match")
	}
}

func TestClientTable(t *testing.T) {
	tests := []struct {
		client  string
		want    string
		wantErr bool
	}{
		{"dataforseo", "dataforseo_responses", false},
		{"demo_2", "demo_2_responses", false},
		{"Bad-Name", "", true},
		{"x; DROP TABLE y", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			got, err := ClientTable(tt.client, "responses")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("err = %v, want ErrInvalidName", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ClientTable: %v", err)
			}
			if got != tt.want {
				t.Errorf("ClientTable() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeRoundTripOrdering(t *testing.T) {
	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(1500 * time.Microsecond)

	s1, s2 := FormatTime(t1), FormatTime(t2)
	if !(s1 < s2) {
		t.Errorf("lexical order broken: %s >= %s", s1, s2)
	}
	parsed, err := ParseTime(s2)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !parsed.Equal(t2) {
		t.Errorf("ParseTime = %v, want %v", parsed, t2)
	}
}

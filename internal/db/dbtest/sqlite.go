// Package dbtest provides migrated SQLite databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"keyrotation-auth/internal/db"
	"keyrotation-auth/internal/db/migrate"
)

// NewSQLite creates a fresh SQLite database under t.TempDir(), applies all migrations and
// returns an open handle closed on cleanup.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

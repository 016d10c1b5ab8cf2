// Package db opens the principal store. Postgres is served through pgx's database/sql driver;
// SQLite (modernc, pure Go) backs local development and tests.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrUnsupportedDSN is returned when DATABASE_URL has neither a postgres nor a sqlite scheme.
var ErrUnsupportedDSN = errors.New("unsupported DATABASE_URL scheme; want postgres://, postgresql:// or sqlite://")

const sqliteScheme = "sqlite://"

// Dialect identifies the SQL flavour behind a *sql.DB.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// DialectFor returns the dialect implied by the DSN scheme.
func DialectFor(dsn string) (Dialect, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(dsn, sqliteScheme):
		return DialectSQLite, nil
	default:
		return 0, ErrUnsupportedDSN
	}
}

// Rebind rewrites ? placeholders to $N for Postgres. Queries in this module never contain
// literal question marks, so a plain scan is sufficient.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Open opens a database for the given DSN and verifies it with a ping. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	dialect, err := DialectFor(dsn)
	if err != nil {
		return nil, err
	}
	var db *sql.DB
	switch dialect {
	case DialectSQLite:
		db, err = openSQLite(strings.TrimPrefix(dsn, sqliteScheme))
	default:
		db, err = sql.Open("pgx", dsn)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// openSQLite uses a single connection: SQLite allows one writer at a time, and a single
// connection turns concurrent key rotations into a queue instead of SQLITE_BUSY failures.
func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite DSN has no path")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

package db

import "embed"

// MigrationFS embeds SQL migration files, one directory per dialect
// (migrations/postgres, migrations/sqlite). Used by the migrate runner and cmd/migrate.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationsDir returns the embedded directory holding migrations for d.
func (d Dialect) MigrationsDir() string {
	return "migrations/" + d.String()
}

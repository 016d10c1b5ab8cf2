// migrate applies or rolls back the embedded principal and audit schema for PostgreSQL or SQLite,
// chosen by the DSN scheme. Re-running at the target version is a no-op.
package main

import (
	"flag"
	"fmt"
	"os"

	"keyrotation-auth/internal/config"
	"keyrotation-auth/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	dsn := flag.String("database", "", "DSN overriding DATABASE_URL (postgres://... or sqlite://path)")
	flag.Parse()

	if *dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		*dsn = cfg.DatabaseURL
	}

	if err := migrate.Run(*dsn, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrations %s: ok\n", *direction)
}

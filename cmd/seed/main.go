// seed inserts development principals for local testing.
// Idempotent: principals whose phone already exists are skipped.
package main

import (
	"context"
	"errors"
	"log"

	"keyrotation-auth/internal/config"
	"keyrotation-auth/internal/db"
	"keyrotation-auth/internal/db/migrate"
	"keyrotation-auth/internal/identity/service"
	"keyrotation-auth/internal/keystore"
	"keyrotation-auth/internal/principal/domain"
	"keyrotation-auth/internal/principal/repository"
	"keyrotation-auth/internal/security"
)

const devPassword = "Aa123456"

var devPrincipals = []service.NewPrincipal{
	{Phone: "13800000000", Password: devPassword, Name: "Dev User", Role: domain.RoleUser},
	{Phone: "13800000001", Password: devPassword, Name: "Dev Admin", Role: domain.RoleAdmin},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal(migrate.ErrNoDatabaseURL)
	}

	dialect, err := db.DialectFor(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	repo := repository.NewSQLRepository(conn, dialect)
	issuer := service.NewSessionIssuer(
		repo,
		keystore.New(repo),
		security.NewTokenCodec(),
		security.NewHasher(cfg.BcryptCost),
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
	)

	ctx := context.Background()
	for _, in := range devPrincipals {
		p, err := issuer.Register(ctx, in)
		if errors.Is(err, service.ErrPrincipalExists) {
			log.Printf("principal %s exists, skipping", in.Phone)
			continue
		}
		if err != nil {
			log.Fatalf("seed %s: %v", in.Phone, err)
		}
		log.Printf("created %s principal %s (%s)", p.Role, p.Phone, p.ID)
	}
}

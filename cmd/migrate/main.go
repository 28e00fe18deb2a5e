package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/openregistrar/registrar-api/pkg/config"
)

func main() {
	var (
		dir  = flag.String("dir", "migrations", "migrations directory")
		down = flag.Bool("down", false, "roll back one migration instead of migrating up")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Name, cfg.Database.SSLMode,
	)

	m, err := migrate.New("file://"+*dir, dsn)
	if err != nil {
		log.Fatalf("failed to init migrator: %v", err)
	}
	defer m.Close() //nolint:errcheck

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("no pending migrations")
			return
		}
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migrations applied")
}

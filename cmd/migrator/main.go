/**
 * @description
 * Standalone migration runner. Applies the embedded SQL migrations to the
 * database named by DATABASE_URL and exits. Run it before the first server
 * start and on every deploy that ships a schema change.
 *
 * @dependencies
 * - database/sql, embed: Standard Go libraries.
 * - github.com/golang-migrate/migrate/v4: Migration engine with iofs source.
 * - github.com/jackc/pgx/v5/stdlib: database/sql driver for the postgres instance.
 */

package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pocketbank/ledger-service/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	if err := run(); err != nil {
		log.Printf("level=fatal component=migrator msg=\"migration run failed\" err=%v", err)
		os.Exit(1)
	}
	log.Println("level=info component=migrator msg=\"migration run finished\"")
}

func run() error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

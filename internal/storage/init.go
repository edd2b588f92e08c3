package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationPath = "migrations"

// RunMigrations applies every pending goose migration.
func RunMigrations(db *sql.DB) error {
	const op = "storage.RunMigrations"

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.Up(db, migrationPath); err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Migrate opens dsn with the lib/pq driver and runs migrations.
func Migrate(dsn string) error {
	const op = "storage.Migrate"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return RunMigrations(db)
}

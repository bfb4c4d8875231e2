package database

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// sourceURL turns a migrations directory into a golang-migrate file source.
func sourceURL(dir string) (string, error) {
	if dir == "" {
		dir = "migrations"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve migrations dir: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func newMigrate(dbURL, dir string) (*migrate.Migrate, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL not set")
	}
	src, err := sourceURL(dir)
	if err != nil {
		return nil, err
	}
	m, err := migrate.New(src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending migrations from dir to the database at dbURL.
func RunMigrations(dbURL, dir string) error {
	log.Println("Initializing database migrations...")

	m, err := newMigrate(dbURL, dir)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Printf("Could not get migration version: %v", err)
	}

	// A dirty version means a previous run failed halfway; the failed
	// migration is re-applied from the last clean version.
	if dirty {
		log.Printf("Database in dirty state at version %d, forcing clean...", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			version, _, _ := m.Version()
			log.Printf("Database is up to date (version %d)", version)
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ = m.Version()
	log.Printf("Migrations complete, current version: %d", version)
	return nil
}

// GetMigrationVersion returns the applied schema version and whether the
// last migration failed halfway. A database without migrations reports
// migrate.ErrNilVersion.
func GetMigrationVersion(dbURL, dir string) (uint, bool, error) {
	m, err := newMigrate(dbURL, dir)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	return m.Version()
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(dbURL, dir string) error {
	m, err := newMigrate(dbURL, dir)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	version, _, _ := m.Version()
	log.Printf("Rolled back to version: %d", version)
	return nil
}

package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/admiral/internal/store/migrations"
)

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	From    uint
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate brings the schema to the latest embedded version.
func (db *DB) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	from, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("schema version %d is dirty", from)
	}

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migration up: %w", err)
		}
		changed = false
	}

	version, dirty, _ := m.Version()
	return &MigrateResult{
		From:    from,
		Version: version,
		Dirty:   dirty,
		Changed: changed,
	}, nil
}

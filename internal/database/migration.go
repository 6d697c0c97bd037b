// internal/database/migration.go
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"labware-service/internal/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator brings the command journal schema up to date
type Migrator struct {
	db     *DB
	source string
	logger *zap.Logger
}

// NewMigrator creates a migrator. Migrations are read from cfg.Migrations
// (a golang-migrate source URL) when set, otherwise from the built-in files.
func NewMigrator(db *DB, logger *zap.Logger, cfg *config.DatabaseConfig) *Migrator {
	m := &Migrator{db: db, logger: logger.With(zap.String("component", "migrator"))}
	if cfg != nil {
		m.source = cfg.Migrations
	}
	return m
}

// Up applies pending migrations. A dirty schema is an error: it needs a
// manual fix before the journal can be trusted.
func (m *Migrator) Up() error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer m.close(mg)

	from, _, err := version(mg)
	if err != nil {
		return err
	}
	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	to, dirty, err := version(mg)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("journal schema version %d is dirty", to)
	}

	m.logger.Info("Journal schema up to date",
		zap.Uint("from_version", from),
		zap.Uint("version", to),
		zap.String("source", m.sourceName()),
	)
	return nil
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(m.db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	if m.source != "" {
		mg, err := migrate.NewWithDatabaseInstance(m.source, "postgres", driver)
		if err != nil {
			return nil, fmt.Errorf("failed to open migrations at %s: %w", m.source, err)
		}
		return mg, nil
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return mg, nil
}

// close releases the migration source and the driver's dedicated
// connection; the pool itself stays open
func (m *Migrator) close(mg *migrate.Migrate) {
	srcErr, dbErr := mg.Close()
	if srcErr != nil || dbErr != nil {
		m.logger.Warn("Failed to close migrator",
			zap.NamedError("source_error", srcErr),
			zap.NamedError("database_error", dbErr),
		)
	}
}

func (m *Migrator) sourceName() string {
	if m.source == "" {
		return "embedded"
	}
	return m.source
}

func version(mg *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, dirty, nil
}

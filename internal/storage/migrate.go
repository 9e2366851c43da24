package storage

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/amm-analytics/internal/config"
	apperrors "github.com/amm-analytics/internal/errors"
)

// PostgresURL builds the URL form of the connection settings
func PostgresURL(cfg *config.PostgresConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Path:     cfg.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Migrator applies the entities schema from a directory of numbered migrations
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens the migration source and the ledger database
func NewMigrator(cfg *config.PostgresConfig, migrationsPath string) (*Migrator, error) {
	m, err := migrate.New("file://"+migrationsPath, PostgresURL(cfg))
	if err != nil {
		return nil, apperrors.NewStorageError("open migrations", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperrors.NewStorageError("migrate up", err)
	}
	return nil
}

// Down rolls back the most recent migration
func (mg *Migrator) Down() error {
	if err := mg.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperrors.NewStorageError("migrate down", err)
	}
	return nil
}

// Version reports the applied version; zero means nothing has been applied
func (mg *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperrors.NewStorageError("migration version", err)
	}
	return version, dirty, nil
}

// Close releases the source and database handles
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const MigrationsTable string = "buildings_schema_migrations"

//go:embed migrations
var migrations_fs embed.FS

// Ensure brings the buildings table up to the multi-source schema: provenance, external id, confidence
// and area columns, a nullable osm_id and a (source, external_id) uniqueness constraint. It is safe to call
// on every run. Migrations use their own connection and are committed before Ensure returns.
func (db *DB) Ensure() error {

	m, err := db.newMigrate()

	if err != nil {
		return err
	}

	defer m.Close()

	err = m.Up()

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("Failed to apply migrations, %w", err)
	}

	return nil
}

// SchemaVersion returns the applied migration version. It is 0 when no migrations have been applied.
func (db *DB) SchemaVersion() (uint, bool, error) {

	m, err := db.newMigrate()

	if err != nil {
		return 0, false, err
	}

	defer m.Close()

	version, dirty, err := m.Version()

	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("Failed to read schema version, %w", err)
	}

	return version, dirty, nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {

	src, err := iofs.New(migrations_fs, "migrations/"+db.Dialect.Name)

	if err != nil {
		return nil, fmt.Errorf("Failed to load migrations, %w", err)
	}

	u, err := url.Parse(db.uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse database URI, %w", err)
	}

	q := u.Query()
	q.Set("x-migrations-table", MigrationsTable)
	u.RawQuery = q.Encode()

	m, err := migrate.NewWithSourceInstance("iofs", src, u.String())

	if err != nil {
		return nil, fmt.Errorf("Failed to create migrate instance, %w", err)
	}

	m.Log = &migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

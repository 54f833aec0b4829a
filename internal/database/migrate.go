package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// NewMigrator builds a migrate instance over db using the embedded scripts
// for d. The returned migrator owns db: closing it closes db.
func NewMigrator(db *sql.DB, d Dialect) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+string(d))
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	var drv database.Driver
	switch d {
	case Postgres:
		drv, err = migratepg.WithInstance(db, &migratepg.Config{})
	case MySQL:
		drv, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case SQLite:
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		err = fmt.Errorf("unsupported sql dialect %q", d)
	}
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(d), drv)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations on a dedicated connection.
// An up-to-date schema is not an error.
func Migrate(ctx context.Context, d Dialect, dsn string) error {
	db, err := Open(ctx, d, dsn)
	if err != nil {
		return err
	}
	m, err := NewMigrator(db, d)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// newProvider is a seam for tests.
var newProvider = func(d goose.Dialect, db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	return goose.NewProvider(d, db, fsys)
}

func runMigrations(ctx context.Context, db *sql.DB, d dialect) error {
	fsys, err := fs.Sub(migrations, d.migrateFS)
	if err != nil {
		return err
	}
	p, err := newProvider(goose.Dialect(d.name), db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

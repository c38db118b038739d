package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// SourceDir is where create and validate write and read migration files.
// Applying migrations always uses the copies embedded at build time.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Commands lists the goose operations Run understands.
var Commands = []string{"up", "down", "redo", "reset"}

func newProvider(db *sql.DB) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("migrate: db is required")
	}
	fsys, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("migrate: goose provider: %w", err)
	}
	return provider, nil
}

// Run applies one of Commands against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, command string) error {
	provider, err := newProvider(db)
	if err != nil {
		return err
	}
	switch command {
	case "up":
		_, err = provider.Up(ctx)
	case "down":
		_, err = provider.Down(ctx)
	case "redo":
		if _, err = provider.Down(ctx); err == nil {
			_, err = provider.UpByOne(ctx)
		}
	case "reset":
		_, err = provider.DownTo(ctx, 0)
	default:
		return fmt.Errorf("migrate: unknown command %q", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Status reports every embedded migration and whether it is applied.
func Status(ctx context.Context, db *sql.DB) ([]*goose.MigrationStatus, error) {
	provider, err := newProvider(db)
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	return statuses, nil
}

// MigrateToVersion moves the schema up or down until target is the current
// version. target is a YYYYMMDDHHMMSS migration version.
func MigrateToVersion(ctx context.Context, db *sql.DB, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != len(versionLayout) {
		return fmt.Errorf("migrate: version %q is not YYYYMMDDHHMMSS", target)
	}
	provider, err := newProvider(db)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("goose current version: %w", err)
	}

	switch {
	case current < version:
		_, err = provider.UpTo(ctx, version)
	case current > version:
		_, err = provider.DownTo(ctx, version)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

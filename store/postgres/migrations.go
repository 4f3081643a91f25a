package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/rvoc"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serialises concurrent Migrate calls through an advisory
// lock.
const migrationLockKey int64 = 0x72766f63 // "rvoc"

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("rvoc/postgres: read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rvoc_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("rvoc/postgres: create migrations table: %w", err)
	}
	return nil
}

// PendingMigrations lists embedded migrations not applied yet, in order.
func (s *Store) PendingMigrations(ctx context.Context) ([]string, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	files, err := migrationFiles()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT filename FROM rvoc_migrations`)
	if err != nil {
		return nil, fmt.Errorf("rvoc/postgres: list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("rvoc/postgres: list applied migrations: %w", err)
	}

	var pending []string
	for _, f := range files {
		if !slices.Contains(applied, f) {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// Migrate applies pending migrations in filename order, each in its own
// transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	files, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, name := range files {
		applied, err := s.applyMigration(ctx, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", rvoc.ErrMigrationFailed, name, err)
		}
		if applied {
			s.logger.Info("applied migration", "file", name)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, name string) (bool, error) {
	data, err := fs.ReadFile(migrationsFS, "migrations/"+name)
	if err != nil {
		return false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
		return false, err
	}
	var done bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM rvoc_migrations WHERE filename = $1)`, name,
	).Scan(&done); err != nil {
		return false, err
	}
	if done {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(data)); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO rvoc_migrations (filename) VALUES ($1)`, name); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

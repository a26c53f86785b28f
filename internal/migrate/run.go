// Package migrate applies the embedded PostgreSQL schema for realm accounts.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serializes concurrent Run calls from replicas starting together.
const lockKey int64 = 0x6d6d6b73657373 // "mmksess"

// Migration is one embedded schema step. Version is the file name without ".sql".
type Migration struct {
	Version string
	SQL     string
}

// Load reads migrations from the "migrations" directory of fsys in version order.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		body, readErr := fs.ReadFile(fsys, "migrations/"+e.Name())
		if readErr != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), readErr)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("migration %s is empty", e.Name())
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(body)})
	}
	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// Run applies every embedded migration not yet recorded in schema_migrations.
// It is safe to call repeatedly and from several processes at once.
func Run(ctx context.Context, db *sql.DB) error {
	migrations, err := Load(migrationsFS)
	if err != nil {
		return err
	}
	if err = ensureTable(ctx, db); err != nil {
		return err
	}

	logger := slog.Default().With("component", "migrations")
	for _, m := range migrations {
		if applyErr := apply(ctx, db, logger, m); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Pending lists the versions of embedded migrations that have not been applied.
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	migrations, err := Load(migrationsFS)
	if err != nil {
		return nil, err
	}
	if err = ensureTable(ctx, db); err != nil {
		return nil, err
	}

	var pending []string
	for _, m := range migrations {
		var applied bool
		if scanErr := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&applied); scanErr != nil {
			return nil, fmt.Errorf("check migration %s: %w", m.Version, scanErr)
		}
		if !applied {
			pending = append(pending, m.Version)
		}
	}
	return pending, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// apply runs m inside a transaction holding the migration advisory lock.
// The applied check happens under the lock so a racing replica skips it.
func apply(ctx context.Context, db *sql.DB, logger *slog.Logger, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback migration failed", "error", rbErr, "version", m.Version)
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}

	var applied bool
	if err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
	).Scan(&applied); err != nil {
		return fmt.Errorf("check migration %s: %w", m.Version, err)
	}
	if applied {
		return nil
	}

	logger.InfoContext(ctx, "applying migration", "version", m.Version)
	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec migration %s: %w", m.Version, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Version, err)
	}
	return nil
}

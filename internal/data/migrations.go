package data

import (
	"context"
	"database/sql"

	"github.com/target/mmk-sessions/internal/migrate"
)

// RunMigrations brings the realm account schema up to date.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

// PendingMigrations reports schema versions not yet applied to db.
func PendingMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Pending(ctx, db)
}

// Package testutil holds fixtures shared by the session service tests.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/target/mmk-sessions/internal/migrate"
)

// realmTables are listed children first so deletes respect foreign keys.
var realmTables = []string{"realm_account_roles", "realm_account_groups", "realm_accounts"}

// TestDBConfig locates the Postgres instance used by integration tests.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The port defaults to the
// docker-compose test profile (55432); CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "mmk"),
		Password: envOr("TEST_DB_PASSWORD", "mmk"),
		DBName:   envOr("TEST_DB_NAME", "mmk_sessions"),
	}
}

func buildBaseDSN(cfg TestDBConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.User, cfg.Password, net.JoinHostPort(cfg.Host, cfg.Port), cfg.DBName, envOr("DB_SSL_MODE", "disable"))
}

// SetupTestDB connects to the shared test database, applies migrations and
// empties the realm tables. The connection is closed by t.Cleanup.
// The test is skipped when no database is reachable unless TEST_REQUIRE_DB is set.
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db := openReachable(t, buildBaseDSN(DefaultTestDBConfig()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	truncateRealm(t, db)

	t.Cleanup(func() {
		truncateRealm(t, db)
		closeQuietly(t, "test db", db)
	})
	return db
}

// SetupAutoDB uses a throwaway schema when TEST_DB_EPHEMERAL is truthy and
// the shared database otherwise.
func SetupAutoDB(t testing.TB) *sql.DB {
	t.Helper()
	if envBool("TEST_DB_EPHEMERAL") {
		return SetupEphemeralSchemaDB(t)
	}
	return SetupTestDB(t)
}

// SetupEphemeralSchemaDB migrates a freshly created schema, points
// search_path at it and drops it when the test ends.
func SetupEphemeralSchemaDB(t testing.TB) *sql.DB {
	t.Helper()
	baseDSN := buildBaseDSN(DefaultTestDBConfig())
	admin := openReachable(t, baseDSN)
	t.Cleanup(func() { closeQuietly(t, "admin db", admin) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	schema := generateSchemaName()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}

	u, err := url.Parse(baseDSN)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema+",public")
	u.RawQuery = q.Encode()

	db, err := sql.Open("pgx", u.String())
	if err != nil {
		t.Fatalf("open schema db: %v", err)
	}
	// Registered after the admin cleanup, so it runs first.
	t.Cleanup(func() {
		closeQuietly(t, "schema db", db)
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		if _, dropErr := admin.ExecContext(dctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); dropErr != nil {
			t.Logf("drop schema %s: %v", schema, dropErr)
		}
	})

	if err = migrate.Run(ctx, db); err != nil {
		t.Fatalf("run migrations in %s: %v", schema, err)
	}
	return db
}

func openReachable(t testing.TB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			closeQuietly(t, "test db", db)
		}
	}
	if err != nil {
		if requireDB() {
			t.Fatalf("test database not available: %v", err)
		}
		t.Skipf("test database not available (docker compose --profile test up -d): %v", err)
	}
	return db
}

func truncateRealm(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range realmTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
}

// generateSchemaName returns t_ followed by eight hex digits.
func generateSchemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%08x", uint32(time.Now().UnixNano()))
	}
	return "t_" + hex.EncodeToString(b)
}

func closeQuietly(t testing.TB, name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", name, err)
	}
}

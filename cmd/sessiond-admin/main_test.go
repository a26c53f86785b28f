package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-sessions/config"
	redisadapter "github.com/target/mmk-sessions/internal/adapters/redis"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"golang.org/x/crypto/bcrypt"
)

func newTestContext(stdin string) (*commandContext, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.AppConfig{
			Auth: config.AuthConfig{
				Token: config.TokenConfig{Secret: "k3y", TTL: time.Hour, Issuer: "mmk-sessions"},
			},
		},
		Stdin:  strings.NewReader(stdin),
		Stdout: out,
	}, out
}

func TestPrintUsageListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.Contains(t, out, "Usage: sessiond-admin")
	for name := range commands() {
		assert.Contains(t, out, name)
	}
	assert.Less(t, strings.Index(out, "db-reset"), strings.Index(out, "verify-token"))
}

func TestIsLikelyRemoteHost(t *testing.T) {
	tests := map[string]bool{
		"":                  false,
		"localhost":         false,
		"127.0.0.1":         false,
		"::1":               false,
		"db.local":          false,
		"10.0.0.12":         true,
		"db.prod.internal":  true,
		"postgres.example.": true,
	}
	for host, want := range tests {
		assert.Equal(t, want, isLikelyRemoteHost(host), host)
	}
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"})
	require.Error(t, err)

	opts, err = parseMigrateFlags([]string{"--status"})
	require.NoError(t, err)
	assert.True(t, opts.Status)
}

func TestPrintPendingMigrations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPendingMigrations(&buf, nil))
	assert.Equal(t, "Schema is up to date.\n", buf.String())

	buf.Reset()
	require.NoError(t, printPendingMigrations(&buf, []string{"0001_realm_accounts"}))
	assert.Equal(t, "1 pending migration(s):\n  0001_realm_accounts\n", buf.String())
}

func TestGuardRemoteHostRefusesWithoutFlag(t *testing.T) {
	cmdCtx, _ := newTestContext("")
	cmdCtx.Config.Postgres.Host = "db.prod.internal"

	remote, err := guardRemoteHost(cmdCtx, false, "drop everything")
	assert.True(t, remote)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--allow-remote")

	cmdCtx.Config.Postgres.Host = "localhost"
	remote, err = guardRemoteHost(cmdCtx, false, "drop everything")
	require.NoError(t, err)
	assert.False(t, remote)
}

func TestConfirmAction(t *testing.T) {
	cmdCtx, out := newTestContext("yes\n")
	require.NoError(t, confirmAction(cmdCtx, realmDeleteConfirmOptions{login: "alice"}, "delete realm account"))
	assert.Contains(t, out.String(), `About to delete realm account for account "alice".`)

	cmdCtx, _ = newTestContext("n\n")
	require.Error(t, confirmAction(cmdCtx, realmDeleteConfirmOptions{login: "alice"}, "delete realm account"))

	cmdCtx, out = newTestContext("")
	require.NoError(t, confirmAction(cmdCtx, realmDeleteConfirmOptions{yes: true, login: "alice"}, "delete realm account"))
	assert.Empty(t, out.String())

	remote := dbResetConfirmOptions{yes: true, target: "db", remoteHost: "db.prod.internal"}
	assert.False(t, remote.IsYes())
}

func TestRunHashPassword(t *testing.T) {
	cmdCtx, out := newTestContext("s3cret\n")
	require.NoError(t, runHashPassword(cmdCtx, []string{"--cost", "4"}))

	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	cmdCtx, _ = newTestContext("")
	require.Error(t, runHashPassword(cmdCtx, []string{"--cost", "4"}))

	cmdCtx, _ = newTestContext("s3cret\n")
	require.Error(t, runHashPassword(cmdCtx, []string{"--cost", "99"}))
}

func TestIssueAndVerifyToken(t *testing.T) {
	cmdCtx, out := newTestContext("")
	require.NoError(t, runIssueToken(cmdCtx, []string{"--subject", "carol", "--roles", "nurse, doctor,nurse"}))
	raw := strings.TrimSpace(out.String())
	require.Equal(t, 2, strings.Count(raw, "."))

	cmdCtx, out = newTestContext("")
	require.NoError(t, runVerifyToken(cmdCtx, []string{raw}))

	var claims domainauth.TokenClaims
	require.NoError(t, json.Unmarshal(out.Bytes(), &claims))
	assert.Equal(t, "carol", claims.Subject)
	assert.Equal(t, "nurse,doctor", claims.Role)
	assert.Equal(t, "mmk-sessions", claims.Issuer)

	cmdCtx, out = newTestContext(raw + "\n")
	require.NoError(t, runVerifyToken(cmdCtx, nil))
	assert.Contains(t, out.String(), `"sub": "carol"`)

	cmdCtx, _ = newTestContext("")
	require.Error(t, runVerifyToken(cmdCtx, []string{"not-a-token"}))
	require.Error(t, runIssueToken(cmdCtx, nil))
}

func TestListSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	dir := redisadapter.NewSessionDirectoryWithPrefix(client, "test:sessions:")
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, s := range []domainauth.Session{
		{Name: "bob-1", Subject: domainauth.NewSubject("bob"), State: domainauth.SessionActive, CreatedAt: created, LastAccess: created},
		{Name: "alice-1", Subject: domainauth.NewSubject("alice"), State: domainauth.SessionActive, CreatedAt: created, LastAccess: created, ClientIP: "10.0.0.5", ClusterNode: true},
	} {
		require.NoError(t, dir.OnSessionEvent(ctx, domainauth.SessionEvent{Type: domainauth.EventConnected, Session: s}))
	}

	var buf bytes.Buffer
	require.NoError(t, listSessions(ctx, dir, listSessionsOptions{}, &buf))
	out := buf.String()
	assert.Less(t, strings.Index(out, "alice-1"), strings.Index(out, "bob-1"))
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "cluster")
	assert.Contains(t, out, "2026-03-01T09:00:00Z")
	assert.Contains(t, out, "2 session(s)")

	buf.Reset()
	require.NoError(t, listSessions(ctx, dir, listSessionsOptions{Subject: "bob"}, &buf))
	assert.NotContains(t, buf.String(), "alice-1")
	assert.Contains(t, buf.String(), "1 session(s)")

	buf.Reset()
	empty := redisadapter.NewSessionDirectoryWithPrefix(client, "other:")
	require.NoError(t, listSessions(ctx, empty, listSessionsOptions{}, &buf))
	assert.Equal(t, "No live sessions.\n", buf.String())
}

func TestParseListSessionsFlags(t *testing.T) {
	opts, err := parseListSessionsFlags(nil, "mmk:sessions:")
	require.NoError(t, err)
	assert.Equal(t, "mmk:sessions:", opts.Prefix)
	assert.Equal(t, defaultCommandTimeout, opts.Timeout)

	_, err = parseListSessionsFlags([]string{"--prefix", ""}, "mmk:sessions:")
	require.Error(t, err)
}

type fakeRealmStore struct {
	accounts map[string]domainauth.RealmAccount
}

func (f *fakeRealmStore) List(context.Context) ([]domainauth.RealmAccount, error) {
	out := make([]domainauth.RealmAccount, 0, len(f.accounts))
	for _, login := range []string{"alice", "bob"} {
		if a, ok := f.accounts[login]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRealmStore) Upsert(_ context.Context, acct domainauth.RealmAccount) error {
	f.accounts[acct.Login] = acct
	return nil
}

func (f *fakeRealmStore) SetLocked(_ context.Context, login string, locked bool) error {
	a := f.accounts[login]
	a.Locked = locked
	f.accounts[login] = a
	return nil
}

func (f *fakeRealmStore) Delete(_ context.Context, login string) (bool, error) {
	_, ok := f.accounts[login]
	delete(f.accounts, login)
	return ok, nil
}

func TestListRealmAccounts(t *testing.T) {
	store := &fakeRealmStore{accounts: map[string]domainauth.RealmAccount{
		"alice": {Login: "alice", Roles: []string{"doctor"}, Groups: []string{"admins"}},
		"bob":   {Login: "bob", Locked: true},
	}}

	var buf bytes.Buffer
	require.NoError(t, listRealmAccounts(context.Background(), store, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "doctor")
	assert.Contains(t, lines[1], "admins")
	assert.Contains(t, lines[2], "true")

	buf.Reset()
	require.NoError(t, listRealmAccounts(context.Background(), &fakeRealmStore{accounts: map[string]domainauth.RealmAccount{}}, &buf))
	assert.Equal(t, "No realm accounts.\n", buf.String())
}

func TestBuildRealmAccount(t *testing.T) {
	opts, err := parseRealmUpsertFlags([]string{
		"--login", " alice ", "--roles", "doctor, nurse", "--groups", "admins", "--password-stdin", "--cost", "4",
	})
	require.NoError(t, err)

	acct, err := buildRealmAccount(opts, strings.NewReader("s3cret\n"))
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Login)
	assert.Equal(t, []string{"doctor", "nurse"}, acct.Roles)
	assert.Equal(t, []string{"admins"}, acct.Groups)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte("s3cret")))

	opts, err = parseRealmUpsertFlags([]string{"--login", "bob"})
	require.NoError(t, err)
	_, err = buildRealmAccount(opts, strings.NewReader(""))
	require.Error(t, err)

	opts.Locked = true
	acct, err = buildRealmAccount(opts, strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, acct.Locked)

	_, err = parseRealmUpsertFlags([]string{"--login", "bob", "--hash", "x", "--password-stdin"})
	require.Error(t, err)
}

func TestDeleteRealmAccount(t *testing.T) {
	store := &fakeRealmStore{accounts: map[string]domainauth.RealmAccount{"alice": {Login: "alice"}}}

	var buf bytes.Buffer
	require.NoError(t, deleteRealmAccount(context.Background(), store, "alice", &buf))
	assert.Contains(t, buf.String(), `Deleted realm account "alice".`)

	require.Error(t, deleteRealmAccount(context.Background(), store, "alice", &buf))
}

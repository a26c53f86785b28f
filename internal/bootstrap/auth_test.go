package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-sessions/config"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeRealmFile(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	body := "accounts:\n" +
		"  - login: alice\n" +
		"    password_hash: \"" + string(hash) + "\"\n" +
		"    roles: [doctor]\n" +
		"    groups: [admins]\n"
	path := filepath.Join(t.TempDir(), "realm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func realmAuthConfig(file string) config.AuthConfig {
	return config.AuthConfig{
		Policy:     config.AuthPolicyRealm,
		AdminGroup: "admins",
		UserGroup:  "users",
		Realm: config.RealmConfig{
			Source:          config.RealmSourceFile,
			File:            file,
			Watch:           true,
			MaxAttempts:     3,
			LockoutDuration: time.Minute,
			AttemptStore:    config.AttemptStoreMemory,
			Breaker:         config.BreakerConfig{Threshold: 5, Timeout: time.Second},
		},
	}
}

func TestBuildCredentialBackend_Dummy(t *testing.T) {
	rt, err := BuildCredentialBackend(CredentialConfig{
		Auth: config.AuthConfig{
			Policy:  config.AuthPolicyDummy,
			DevAuth: config.DevAuthConfig{UserID: "anonymous", Roles: []string{"admin"}},
		},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.PolicyDummy, rt.Backend.Policy())
	assert.Nil(t, rt.RealmFile)

	sess, err := rt.Backend.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "anonymous", sess.Subject().Login)
}

func TestBuildCredentialBackend_Token(t *testing.T) {
	t.Run("secret configured", func(t *testing.T) {
		auth := config.AuthConfig{
			Policy: config.AuthPolicyToken,
			Token:  config.TokenConfig{Secret: "k3y", TTL: time.Hour},
		}
		rt, err := BuildCredentialBackend(CredentialConfig{Auth: auth, Logger: discardLogger()})
		require.NoError(t, err)
		assert.Equal(t, domainauth.PolicyToken, rt.Backend.Policy())

		tc, err := NewTokenContext(auth.Token)
		require.NoError(t, err)
		raw, err := tc.Issue("carol", "nurse")
		require.NoError(t, err)

		sess, err := rt.Backend.Verify(context.Background(), "", raw)
		require.NoError(t, err)
		assert.Equal(t, "carol", sess.Subject().Login)
		assert.True(t, sess.Subject().HasRole("nurse"))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := BuildCredentialBackend(CredentialConfig{
			Auth:   config.AuthConfig{Policy: config.AuthPolicyToken},
			Logger: discardLogger(),
		})
		require.Error(t, err)
	})
}

func TestBuildCredentialBackend_RealmFile(t *testing.T) {
	rt, err := BuildCredentialBackend(CredentialConfig{
		Auth:   realmAuthConfig(writeRealmFile(t)),
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, rt.RealmFile)
	assert.Equal(t, domainauth.PolicyRealm, rt.Backend.Policy())

	ctx := context.Background()
	sess, err := rt.Backend.Verify(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.True(t, sess.Subject().HasRole("doctor"))
	assert.True(t, sess.Subject().HasRole(string(domainauth.RoleAdmin)))

	for range 3 {
		_, err = rt.Backend.Verify(ctx, "alice", "wrong")
		require.Error(t, err)
	}
	_, err = rt.Backend.Verify(ctx, "alice", "s3cret")
	assert.True(t, apperrors.IsTooManyAttempts(err), "got %v", err)
}

func TestBuildCredentialBackend_RealmErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AuthConfig)
	}{
		{
			name:   "missing realm file",
			mutate: func(a *config.AuthConfig) { a.Realm.File = filepath.Join(t.TempDir(), "absent.yaml") },
		},
		{
			name:   "postgres without database",
			mutate: func(a *config.AuthConfig) { a.Realm.Source = config.RealmSourcePostgres },
		},
		{
			name:   "redis attempts without client",
			mutate: func(a *config.AuthConfig) { a.Realm.AttemptStore = config.AttemptStoreRedis },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := realmAuthConfig(writeRealmFile(t))
			tt.mutate(&auth)
			_, err := BuildCredentialBackend(CredentialConfig{Auth: auth, Logger: discardLogger()})
			require.Error(t, err)
		})
	}
}

func TestBuildAttemptTracker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	auth := realmAuthConfig("")
	auth.Realm.AttemptStore = config.AttemptStoreRedis

	tracker, err := buildAttemptTracker(CredentialConfig{Auth: auth, RedisClient: client})
	require.NoError(t, err)
	require.NotNil(t, tracker)

	ctx := context.Background()
	for range 3 {
		_, err = tracker.Failure(ctx, "alice")
		require.NoError(t, err)
	}
	blocked, err := tracker.Blocked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, blocked)

	auth.Realm.MaxAttempts = 0
	tracker, err = buildAttemptTracker(CredentialConfig{Auth: auth, RedisClient: client})
	require.NoError(t, err)
	assert.Nil(t, tracker)
}

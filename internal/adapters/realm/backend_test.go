package realm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	mockauth "github.com/target/mmk-sessions/internal/mocks/auth"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestBackend(t *testing.T, relaxed bool, accounts ...domainauth.RealmAccount) (*Backend, *mockauth.MemoryPrincipalStore, *MemoryAttempts) {
	t.Helper()
	store := mockauth.NewMemoryPrincipalStore(accounts...)
	attempts := NewMemoryAttempts(WithMaxAttempts(3))
	b, err := NewBackend(Options{
		Store:         store,
		Attempts:      attempts,
		Roles:         mockauth.StaticRoleMapper{Roles: []string{"user"}},
		RelaxedReauth: relaxed,
	})
	require.NoError(t, err)
	return b, store, attempts
}

func TestNewBackend_RequiresStore(t *testing.T) {
	_, err := NewBackend(Options{})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestBackend_Verify(t *testing.T) {
	alice := domainauth.RealmAccount{
		Login:        "alice",
		PasswordHash: hashPassword(t, "secret"),
		Roles:        []string{"doctor"},
		Groups:       []string{"users"},
	}
	locked := domainauth.RealmAccount{Login: "mallory", Locked: true}

	tests := []struct {
		name     string
		login    string
		password string
		check    func(t *testing.T, err error)
	}{
		{
			name: "success", login: "alice", password: "secret",
			check: func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name: "empty login", login: "  ", password: "secret",
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperrors.ReasonUnknownAccount, apperrors.GetReason(err))
			},
		},
		{
			name: "unknown account", login: "bob", password: "secret",
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsInvalidCredential(err))
				assert.Equal(t, apperrors.ReasonUnknownAccount, apperrors.GetReason(err))
			},
		},
		{
			name: "bad password", login: "alice", password: "wrong",
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsInvalidCredential(err))
				assert.Equal(t, apperrors.ReasonBadCredential, apperrors.GetReason(err))
			},
		},
		{
			name: "missing password", login: "alice", password: "",
			check: func(t *testing.T, err error) {
				assert.Equal(t, apperrors.ReasonMissingCredential, apperrors.GetReason(err))
			},
		},
		{
			name: "locked account", login: "mallory", password: "anything",
			check: func(t *testing.T, err error) { assert.True(t, apperrors.IsAccountLocked(err)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, _ := newTestBackend(t, true, alice, locked)
			_, err := b.Verify(context.Background(), tt.login, tt.password)
			tt.check(t, err)
		})
	}
}

func TestBackend_Verify_SubjectRolesAndGroups(t *testing.T) {
	b, _, _ := newTestBackend(t, true, domainauth.RealmAccount{
		Login:        "alice",
		PasswordHash: hashPassword(t, "secret"),
		Roles:        []string{"doctor"},
		Groups:       []string{"users"},
	})

	sess, err := b.Verify(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.True(t, sess.Authenticated())

	subj := sess.Subject()
	assert.Equal(t, "alice", subj.Login)
	assert.ElementsMatch(t, []string{"doctor", "user"}, subj.Roles)
	creds, ok := subj.Credentials.(Credentials)
	require.True(t, ok)
	assert.Equal(t, []string{"users"}, creds.Groups)
}

func TestBackend_Lockout(t *testing.T) {
	b, store, attempts := newTestBackend(t, true, domainauth.RealmAccount{
		Login:        "alice",
		PasswordHash: hashPassword(t, "secret"),
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Verify(ctx, "alice", "wrong")
		require.True(t, apperrors.IsInvalidCredential(err), "attempt %d", i)
	}

	lookups := store.Lookups()
	_, err := b.Verify(ctx, "alice", "secret")
	assert.True(t, apperrors.IsTooManyAttempts(err))
	assert.Equal(t, lookups, store.Lookups(), "blocked login must not reach the store")

	require.NoError(t, attempts.Reset(ctx, "alice"))
	_, err = b.Verify(ctx, "alice", "secret")
	assert.NoError(t, err)
}

func TestBackend_SuccessResetsAttempts(t *testing.T) {
	b, _, attempts := newTestBackend(t, true, domainauth.RealmAccount{
		Login:        "alice",
		PasswordHash: hashPassword(t, "secret"),
	})
	ctx := context.Background()

	_, _ = b.Verify(ctx, "alice", "wrong")
	_, _ = b.Verify(ctx, "alice", "wrong")
	_, err := b.Verify(ctx, "alice", "secret")
	require.NoError(t, err)

	_, ok := attempts.Status("alice")
	assert.False(t, ok)
}

func TestBackend_StoreUnavailable(t *testing.T) {
	b, store, attempts := newTestBackend(t, true)
	store.Err = apperrors.Unavailable("db down", nil)

	_, err := b.Verify(context.Background(), "alice", "secret")
	assert.True(t, apperrors.IsUnavailable(err))
	_, recorded := attempts.Status("alice")
	assert.False(t, recorded, "outages are not credential failures")

	store.Err = context.DeadlineExceeded
	_, err = b.Verify(context.Background(), "alice", "secret")
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestBackendSession_CheckCredential(t *testing.T) {
	acct := domainauth.RealmAccount{Login: "alice", PasswordHash: hashPassword(t, "secret")}
	ctx := context.Background()

	t.Run("relaxed accepts anything once authenticated", func(t *testing.T) {
		b, store, _ := newTestBackend(t, true, acct)
		sess, err := b.Verify(ctx, "alice", "secret")
		require.NoError(t, err)
		before := store.Lookups()

		assert.NoError(t, sess.CheckCredential(ctx, "whatever"))
		assert.Equal(t, before, store.Lookups())
	})

	t.Run("strict re-verifies", func(t *testing.T) {
		b, _, _ := newTestBackend(t, false, acct)
		sess, err := b.Verify(ctx, "alice", "secret")
		require.NoError(t, err)

		assert.NoError(t, sess.CheckCredential(ctx, "secret"))
		err = sess.CheckCredential(ctx, "wrong")
		assert.True(t, apperrors.IsInvalidCredential(err))
		assert.False(t, sess.Authenticated())

		assert.NoError(t, sess.CheckCredential(ctx, "secret"))
		assert.True(t, sess.Authenticated())
	})

	t.Run("outage keeps authenticated flag", func(t *testing.T) {
		b, store, _ := newTestBackend(t, false, acct)
		sess, err := b.Verify(ctx, "alice", "secret")
		require.NoError(t, err)

		store.Err = apperrors.Unavailable("down", nil)
		assert.True(t, apperrors.IsUnavailable(sess.CheckCredential(ctx, "secret")))
		assert.True(t, sess.Authenticated())
	})
}

func TestBackend_LockoutExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	attempts := NewMemoryAttempts(
		WithMaxAttempts(1),
		WithLockoutDuration(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	b, err := NewBackend(Options{
		Store: mockauth.NewMemoryPrincipalStore(domainauth.RealmAccount{
			Login:        "alice",
			PasswordHash: hashPassword(t, "secret"),
		}),
		Attempts: attempts,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Verify(ctx, "alice", "wrong")
	require.True(t, apperrors.IsInvalidCredential(err))
	_, err = b.Verify(ctx, "alice", "secret")
	require.True(t, apperrors.IsTooManyAttempts(err))

	now = now.Add(2 * time.Minute)
	_, err = b.Verify(ctx, "alice", "secret")
	assert.NoError(t, err)
}

package tokenauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/token"
)

func newContext(t *testing.T, now func() time.Time) *token.Context {
	t.Helper()
	ctx, err := token.New(token.Config{Secret: "test-secret", TTL: time.Hour, Issuer: "test", Now: now})
	require.NoError(t, err)
	return ctx
}

func TestNewBackend_RequiresVerifier(t *testing.T) {
	_, err := NewBackend(nil)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestBackend_Verify(t *testing.T) {
	tc := newContext(t, nil)
	b, err := NewBackend(tc)
	require.NoError(t, err)
	assert.Equal(t, domainauth.PolicyToken, b.Policy())

	raw, err := tc.Issue("alice", "doctor,admin")
	require.NoError(t, err)

	sess, err := b.Verify(context.Background(), "", raw)
	require.NoError(t, err)
	assert.True(t, sess.Authenticated())
	subj := sess.Subject()
	assert.Equal(t, "alice", subj.Login)
	assert.ElementsMatch(t, []string{"doctor", "admin"}, subj.Roles)
	claims, ok := subj.Credentials.(domainauth.TokenClaims)
	require.True(t, ok)
	assert.Equal(t, "test", claims.Issuer)

	_, err = b.Verify(context.Background(), "alice", raw)
	assert.NoError(t, err)
}

func TestBackend_Verify_Failures(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tc := newContext(t, clock)
	b, err := NewBackend(tc)
	require.NoError(t, err)

	raw, err := tc.Issue("alice", "")
	require.NoError(t, err)

	other, err := token.New(token.Config{Secret: "other-secret"})
	require.NoError(t, err)
	foreign, err := other.Issue("alice", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		subject string
		raw     string
		advance time.Duration
		reason  apperrors.Reason
	}{
		{name: "empty", raw: "", reason: apperrors.ReasonMissingCredential},
		{name: "garbage", raw: "not-a-token", reason: apperrors.ReasonMalformedToken},
		{name: "wrong key", raw: foreign, reason: apperrors.ReasonBadSignature},
		{name: "subject mismatch", subject: "bob", raw: raw, reason: apperrors.ReasonSubjectMismatch},
		{name: "expired", raw: raw, advance: 2 * time.Hour, reason: apperrors.ReasonExpiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := now
			now = now.Add(tt.advance)
			defer func() { now = saved }()

			_, verr := b.Verify(context.Background(), tt.subject, tt.raw)
			require.Error(t, verr)
			assert.True(t, apperrors.IsInvalidCredential(verr))
			assert.Equal(t, tt.reason, apperrors.GetReason(verr))
		})
	}
}

func TestSession_CheckCredential(t *testing.T) {
	tc := newContext(t, nil)
	b, err := NewBackend(tc)
	require.NoError(t, err)
	ctx := context.Background()

	first, _ := tc.Issue("alice", "user")
	sess, err := b.Verify(ctx, "", first)
	require.NoError(t, err)

	refreshed, _ := tc.Issue("alice", "user,admin")
	require.NoError(t, sess.CheckCredential(ctx, refreshed))
	assert.True(t, sess.Subject().HasRole("admin"))

	stranger, _ := tc.Issue("bob", "admin")
	err = sess.CheckCredential(ctx, stranger)
	assert.Equal(t, apperrors.ReasonSubjectMismatch, apperrors.GetReason(err))
	assert.False(t, sess.Authenticated())
	assert.Equal(t, "alice", sess.Subject().Login)
}

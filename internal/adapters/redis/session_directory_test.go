package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"github.com/target/mmk-sessions/internal/testutil"
)

func testSession(name string) domainauth.Session {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return domainauth.Session{
		SecretID:   "super-secret-id-value",
		Name:       name,
		Subject:    domainauth.NewSubject("alice", "user"),
		State:      domainauth.SessionActive,
		CreatedAt:  now,
		LastAccess: now,
		Timeout:    time.Minute,
		ClientIP:   "10.0.0.1",
	}
}

func TestSessionDirectory_PublishAndRemove(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	dir := NewSessionDirectory(client)
	ctx := context.Background()

	sess := testSession("alice-1")
	require.NoError(t, dir.OnSessionEvent(ctx, domainauth.SessionEvent{Type: domainauth.EventConnected, Session: sess}))

	entry, err := dir.Get(ctx, "alice-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Subject)
	assert.Equal(t, domainauth.SessionActive, entry.State)
	assert.Equal(t, "10.0.0.1", entry.ClientIP)
	assert.True(t, entry.CreatedAt.Equal(sess.CreatedAt))

	raw, err := client.HGetAll(ctx, "mmk:sessions:entry:alice-1").Result()
	require.NoError(t, err)
	for field, v := range raw {
		assert.NotContains(t, v, sess.SecretID, field)
	}

	list, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, dir.OnSessionEvent(ctx, domainauth.SessionEvent{Type: domainauth.EventDisconnected, Session: sess}))
	_, err = dir.Get(ctx, "alice-1")
	assert.ErrorIs(t, err, ErrNotFound)
	list, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSessionDirectory_ExpiredEntriesArePruned(t *testing.T) {
	client, mr := testutil.SetupTestRedis(t)
	dir := NewSessionDirectoryWithPrefix(client, "test:")
	ctx := context.Background()

	require.NoError(t, dir.OnSessionEvent(ctx, domainauth.SessionEvent{
		Type: domainauth.EventConnected, Session: testSession("alice-1"),
	}))
	mr.FastForward(2 * time.Minute)

	list, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists("test:index"))
}

func TestSessionDirectory_IgnoresEmptyName(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	dir := NewSessionDirectory(client)
	ctx := context.Background()

	err := dir.OnSessionEvent(ctx, domainauth.SessionEvent{Type: domainauth.EventConnected})
	assert.Error(t, err)
	assert.NoError(t, dir.OnSessionEvent(ctx, domainauth.SessionEvent{Type: domainauth.EventKilled}))
}

func TestSessionDirectory_OrdersBySeq(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	dir := NewSessionDirectory(client)
	ctx := context.Background()
	sess := testSession("alice-1")

	event := func(typ domainauth.EventType, seq uint64) domainauth.SessionEvent {
		return domainauth.SessionEvent{Type: typ, Session: sess, Seq: seq}
	}
	assertListed := func(t *testing.T, want bool) {
		t.Helper()
		list, err := dir.List(ctx)
		require.NoError(t, err)
		if want {
			require.Len(t, list, 1)
			assert.Equal(t, "alice-1", list[0].Name)
			return
		}
		assert.Empty(t, list)
	}

	t.Run("connect delivered after kill", func(t *testing.T) {
		require.NoError(t, dir.OnSessionEvent(ctx, event(domainauth.EventKilled, 5)))
		require.NoError(t, dir.OnSessionEvent(ctx, event(domainauth.EventConnected, 4)))
		_, err := dir.Get(ctx, "alice-1")
		assert.ErrorIs(t, err, ErrNotFound)
		assertListed(t, false)
	})

	t.Run("name reused by a newer session", func(t *testing.T) {
		require.NoError(t, dir.OnSessionEvent(ctx, event(domainauth.EventConnected, 10)))
		assertListed(t, true)
	})

	t.Run("late removal of the older session", func(t *testing.T) {
		require.NoError(t, dir.OnSessionEvent(ctx, event(domainauth.EventDisconnected, 7)))
		assertListed(t, true)

		state := sess
		state.State = domainauth.SessionReconnected
		require.NoError(t, dir.OnSessionEvent(ctx, domainauth.SessionEvent{Type: domainauth.EventReconnected, Session: state, Seq: 11}))
		require.NoError(t, dir.OnSessionEvent(ctx, event(domainauth.EventConnected, 9)))
		entry, err := dir.Get(ctx, "alice-1")
		require.NoError(t, err)
		assert.Equal(t, domainauth.SessionReconnected, entry.State)
	})
}

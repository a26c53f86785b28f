package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/testutil"
)

func TestRealmAccountRepo_UpsertAndLookup(t *testing.T) {
	db := testutil.SetupTestDB(t)

	repo := NewRealmAccountRepoWithTimeProvider(db, NewFixedTimeProvider(testutil.TestTime()))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domainauth.RealmAccount{
		Login:        "alice",
		PasswordHash: "$2a$10$hash",
		Roles:        []string{"doctor", "nurse", "doctor"},
		Groups:       []string{"users"},
	}))

	acct, err := repo.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$hash", acct.PasswordHash)
	assert.Equal(t, []string{"doctor", "nurse"}, acct.Roles)
	assert.Equal(t, []string{"users"}, acct.Groups)
	assert.False(t, acct.Locked)

	// Upsert replaces roles and groups.
	require.NoError(t, repo.Upsert(ctx, domainauth.RealmAccount{
		Login:        "alice",
		PasswordHash: "$2a$10$other",
		Roles:        []string{"admin"},
	}))
	acct, err = repo.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$other", acct.PasswordHash)
	assert.Equal(t, []string{"admin"}, acct.Roles)
	assert.Empty(t, acct.Groups)
}

func TestRealmAccountRepo_LookupMissing(t *testing.T) {
	repo := NewRealmAccountRepo(testutil.SetupTestDB(t))
	_, err := repo.Lookup(context.Background(), "nobody")
	assert.True(t, apperrors.IsNotFound(err))
	_, err = repo.Lookup(context.Background(), "  ")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRealmAccountRepo_Validation(t *testing.T) {
	db := testutil.SetupAutoDB(t)

	repo := NewRealmAccountRepo(db)
	ctx := context.Background()

	err := repo.Upsert(ctx, domainauth.RealmAccount{Login: " "})
	assert.Equal(t, "login", apperrors.GetField(err))
	err = repo.Upsert(ctx, domainauth.RealmAccount{Login: "bob"})
	assert.Equal(t, "password_hash", apperrors.GetField(err))
	assert.NoError(t, repo.Upsert(ctx, domainauth.RealmAccount{Login: "bob", Locked: true}))
}

func TestRealmAccountRepo_LockListDelete(t *testing.T) {
	db := testutil.SetupAutoDB(t)

	repo := NewRealmAccountRepo(db)
	ctx := context.Background()

	for _, login := range []string{"carol", "alice"} {
		require.NoError(t, repo.Upsert(ctx, domainauth.RealmAccount{Login: login, PasswordHash: "h"}))
	}

	require.NoError(t, repo.SetLocked(ctx, "alice", true))
	acct, err := repo.Lookup(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, acct.Locked)
	assert.True(t, apperrors.IsNotFound(repo.SetLocked(ctx, "nobody", true)))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Login)
	assert.Equal(t, "carol", list[1].Login)

	deleted, err := repo.Delete(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, deleted)
}

package realm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/target/mmk-sessions/internal/errors"
)

const realmYAML = `accounts:
  - login: alice
    password_hash: "$2a$04$abcdefghijklmnopqrstuu"
    roles: [doctor, " Doctor "]
    groups: [admins]
  - login: mallory
    locked: true
`

func writeRealm(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestNewFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realm.yaml")
	writeRealm(t, path, realmYAML)

	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	acct, err := s.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"doctor"}, acct.Roles)
	assert.Equal(t, []string{"admins"}, acct.Groups)

	m, err := s.Lookup(context.Background(), "mallory")
	require.NoError(t, err)
	assert.True(t, m.Locked)

	_, err = s.Lookup(context.Background(), "bob")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestNewFileStore_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileStore("", nil)
	assert.True(t, apperrors.IsConfiguration(err))

	_, err = NewFileStore(filepath.Join(dir, "missing.yaml"), nil)
	assert.True(t, apperrors.IsConfiguration(err))

	cases := map[string]string{
		"no login":  "accounts:\n  - password_hash: x\n",
		"duplicate": "accounts:\n  - login: a\n    password_hash: x\n  - login: a\n    password_hash: y\n",
		"no hash":   "accounts:\n  - login: a\n",
		"bad yaml":  "accounts: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			writeRealm(t, path, body)
			_, err := NewFileStore(path, nil)
			assert.True(t, apperrors.IsConfiguration(err))
		})
	}
}

func TestFileStore_ReloadKeepsSnapshotOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realm.yaml")
	writeRealm(t, path, realmYAML)
	s, err := NewFileStore(path, nil)
	require.NoError(t, err)

	writeRealm(t, path, "accounts: [")
	assert.Error(t, s.Reload())
	assert.Equal(t, 2, s.Len())

	writeRealm(t, path, "accounts:\n  - login: carol\n    password_hash: x\n")
	require.NoError(t, s.Reload())
	assert.Equal(t, 1, s.Len())
	_, err = s.Lookup(context.Background(), "alice")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFileStore_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realm.yaml")
	writeRealm(t, path, realmYAML)
	s, err := NewFileStore(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeRealm(t, path, "accounts:\n  - login: carol\n    password_hash: x\n")

	require.Eventually(t, func() bool {
		_, lerr := s.Lookup(context.Background(), "carol")
		return lerr == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case werr := <-done:
		assert.NoError(t, werr)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

package realm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout of a realm file:
//
//	accounts:
//	  - login: alice
//	    password_hash: $2a$10$...
//	    roles: [doctor]
//	    groups: [admins]
//	    locked: false
type fileDocument struct {
	Accounts []domainauth.RealmAccount `yaml:"accounts"`
}

// FileStore serves realm accounts from a YAML file.
// Reload swaps the whole snapshot; a failed reload keeps the previous one.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	accounts map[string]domainauth.RealmAccount
}

var _ ports.PrincipalStore = (*FileStore)(nil)

// NewFileStore loads path and returns a ready store.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.Configuration("realm file path is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: path, logger: logger.With("component", "realm_file_store", "path", path)}
	if err := s.Reload(); err != nil {
		return nil, apperrors.Configuration("load realm file", err)
	}
	return s, nil
}

// Lookup returns the account for login.
func (s *FileStore) Lookup(_ context.Context, login string) (domainauth.RealmAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[login]
	if !ok {
		return domainauth.RealmAccount{}, apperrors.NotFound("account not found")
	}
	return acct, nil
}

// Len returns the number of loaded accounts.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// Reload re-reads the file and replaces the snapshot.
func (s *FileStore) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read realm file: %w", err)
	}
	accounts, err := parseRealm(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.accounts = accounts
	s.mu.Unlock()
	return nil
}

func parseRealm(raw []byte) (map[string]domainauth.RealmAccount, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse realm file: %w", err)
	}
	out := make(map[string]domainauth.RealmAccount, len(doc.Accounts))
	for i, acct := range doc.Accounts {
		acct.Login = strings.TrimSpace(acct.Login)
		if acct.Login == "" {
			return nil, fmt.Errorf("realm account %d: login is required", i)
		}
		if _, dup := out[acct.Login]; dup {
			return nil, fmt.Errorf("realm account %q defined twice", acct.Login)
		}
		if acct.PasswordHash == "" && !acct.Locked {
			return nil, fmt.Errorf("realm account %q: password_hash is required", acct.Login)
		}
		acct.Roles = domainauth.NormalizeRoles(acct.Roles)
		out[acct.Login] = acct
	}
	return out, nil
}

// Watch reloads the file whenever it changes until ctx is canceled.
// The parent directory is watched so editors that replace the file are seen.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create realm watcher: %w", err)
	}
	defer func() {
		if cerr := watcher.Close(); cerr != nil {
			s.logger.Warn("close realm watcher", "error", cerr)
		}
	}()

	if err = watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch realm dir: %w", err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if reloadErr := s.Reload(); reloadErr != nil {
				if errors.Is(reloadErr, os.ErrNotExist) {
					// Rename-based saves briefly remove the file; the Create event follows.
					continue
				}
				s.logger.ErrorContext(ctx, "realm reload failed, keeping previous accounts", "error", reloadErr)
				continue
			}
			s.logger.InfoContext(ctx, "realm reloaded", "accounts", s.Len())
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "realm watcher error", "error", werr)
		}
	}
}

// Package realm implements the username/password credential backend and the
// principal stores it reads accounts from.
package realm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

// Options configures a Backend.
type Options struct {
	Store    ports.PrincipalStore
	Attempts ports.AttemptTracker // optional; nil disables lockout
	Roles    ports.RoleMapper     // optional; maps account groups to roles
	// RelaxedReauth lets an authenticated backend session accept any later
	// credential check without consulting the store.
	RelaxedReauth bool
	Logger        *slog.Logger
}

// Backend verifies username/password credentials against a PrincipalStore.
type Backend struct {
	store    ports.PrincipalStore
	attempts ports.AttemptTracker
	roles    ports.RoleMapper
	relaxed  bool
	logger   *slog.Logger
}

var _ ports.CredentialBackend = (*Backend)(nil)

// NewBackend constructs a realm Backend.
func NewBackend(opts Options) (*Backend, error) {
	if opts.Store == nil {
		return nil, apperrors.Configuration("realm backend: principal store is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		store:    opts.Store,
		attempts: opts.Attempts,
		roles:    opts.Roles,
		relaxed:  opts.RelaxedReauth,
		logger:   logger.With("component", "realm_backend"),
	}, nil
}

func (b *Backend) Policy() domainauth.Policy { return domainauth.PolicyRealm }

// Verify authenticates login with password.
func (b *Backend) Verify(ctx context.Context, login, password string) (ports.BackendSession, error) {
	subject, err := b.authenticate(ctx, login, password)
	if err != nil {
		return nil, err
	}
	return &backendSession{backend: b, subject: subject, authenticated: true}, nil
}

func (b *Backend) authenticate(ctx context.Context, login, password string) (domainauth.Subject, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return domainauth.Subject{}, apperrors.InvalidCredential(apperrors.ReasonUnknownAccount, nil)
	}

	if err := b.checkBlocked(ctx, login); err != nil {
		return domainauth.Subject{}, err
	}

	acct, err := b.store.Lookup(ctx, login)
	switch {
	case apperrors.IsNotFound(err):
		// Burn a comparison so unknown logins cost the same as bad passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		b.recordFailure(ctx, login)
		return domainauth.Subject{}, apperrors.InvalidCredential(apperrors.ReasonUnknownAccount, nil)
	case apperrors.IsUnavailable(err):
		return domainauth.Subject{}, err
	case err != nil:
		return domainauth.Subject{}, apperrors.Unavailable("principal store lookup failed", err)
	}

	if acct.Locked {
		return domainauth.Subject{}, apperrors.AccountLocked()
	}

	if password == "" {
		b.recordFailure(ctx, login)
		return domainauth.Subject{}, apperrors.InvalidCredential(apperrors.ReasonMissingCredential, nil)
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); cmpErr != nil {
		b.recordFailure(ctx, login)
		return domainauth.Subject{}, apperrors.InvalidCredential(apperrors.ReasonBadCredential, cmpErr)
	}

	if b.attempts != nil {
		if resetErr := b.attempts.Reset(ctx, login); resetErr != nil {
			b.logger.WarnContext(ctx, "reset failed attempts", "login", login, "error", resetErr)
		}
	}

	roles := append([]string(nil), acct.Roles...)
	if b.roles != nil {
		roles = append(roles, b.roles.Map(acct.Groups)...)
	}
	subject := domainauth.NewSubject(acct.Login, roles...)
	subject.Credentials = Credentials{Groups: append([]string(nil), acct.Groups...)}
	return subject, nil
}

func (b *Backend) checkBlocked(ctx context.Context, login string) error {
	if b.attempts == nil {
		return nil
	}
	blocked, err := b.attempts.Blocked(ctx, login)
	if err != nil {
		// Fail closed: an unreadable attempt counter must not disable lockout.
		return apperrors.Unavailable("attempt tracker unavailable", err)
	}
	if blocked {
		return apperrors.TooManyAttempts()
	}
	return nil
}

func (b *Backend) recordFailure(ctx context.Context, login string) {
	if b.attempts == nil {
		return
	}
	locked, err := b.attempts.Failure(ctx, login)
	if err != nil {
		b.logger.WarnContext(ctx, "record failed attempt", "login", login, "error", err)
		return
	}
	if locked {
		b.logger.WarnContext(ctx, "login locked out after repeated failures", "login", login)
	}
}

// Credentials is the realm metadata attached to an authenticated Subject.
type Credentials struct {
	Groups []string
}

type backendSession struct {
	backend *Backend

	mu            sync.Mutex
	subject       domainauth.Subject
	authenticated bool
}

func (s *backendSession) Subject() domainauth.Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

func (s *backendSession) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// CheckCredential short-circuits for an authenticated session when relaxed
// re-auth is enabled; otherwise the password is verified against the store.
func (s *backendSession) CheckCredential(ctx context.Context, password string) error {
	s.mu.Lock()
	if s.backend.relaxed && s.authenticated {
		s.mu.Unlock()
		return nil
	}
	login := s.subject.Login
	s.mu.Unlock()

	subject, err := s.backend.authenticate(ctx, login, password)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeUnavailable {
			s.authenticated = false
		}
		return err
	}
	s.subject = subject
	s.authenticated = true
	return nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("mmk-sessions-timing"), bcrypt.DefaultCost)
	})
	return dummy
}

package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
)

// CredentialBackend verifies a presented credential against one policy.
// Implementations must be safe for concurrent use.
type CredentialBackend interface {
	Policy() domainauth.Policy

	// Verify authenticates subjectID with credential and returns the backend's
	// view of the authenticated session. Failures are *errors.AppError values.
	Verify(ctx context.Context, subjectID, credential string) (BackendSession, error)
}

// BackendSession is the per-connection state a backend keeps for an
// authenticated subject.
type BackendSession interface {
	Subject() domainauth.Subject
	Authenticated() bool

	// CheckCredential re-validates credential for this backend session.
	CheckCredential(ctx context.Context, credential string) error
}

// SessionListener observes committed session lifecycle transitions.
// Listeners are called synchronously; returned errors are logged only.
type SessionListener interface {
	OnSessionEvent(ctx context.Context, evt domainauth.SessionEvent) error
}

// SessionListenerFunc adapts a function to SessionListener.
type SessionListenerFunc func(ctx context.Context, evt domainauth.SessionEvent) error

func (f SessionListenerFunc) OnSessionEvent(ctx context.Context, evt domainauth.SessionEvent) error {
	return f(ctx, evt)
}

// PrincipalStore looks up realm accounts by login.
// A missing account is reported as an errors.NotFound AppError.
type PrincipalStore interface {
	Lookup(ctx context.Context, login string) (domainauth.RealmAccount, error)
}

// AttemptTracker counts consecutive failed logins per identifier.
type AttemptTracker interface {
	// Blocked reports whether identifier is currently locked out.
	Blocked(ctx context.Context, identifier string) (bool, error)
	// Failure records a failed attempt and reports whether the identifier is now locked out.
	Failure(ctx context.Context, identifier string) (bool, error)
	// Reset clears the failure count after a successful login.
	Reset(ctx context.Context, identifier string) error
}

// RoleMapper maps realm groups to application roles.
type RoleMapper interface {
	Map(groups []string) []string
}

// Clock supplies the current time to expiry checks.
type Clock interface {
	Now() time.Time
}

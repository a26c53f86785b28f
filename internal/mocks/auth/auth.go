package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialBackend = (*PasswordBackend)(nil)
	_ ports.PrincipalStore    = (*MemoryPrincipalStore)(nil)
	_ ports.SessionListener   = (*RecordingListener)(nil)
	_ ports.RoleMapper        = StaticRoleMapper{}
)

// PasswordBackend accepts logins whose credential equals the configured password.
// Calls are counted so tests can assert when the backend was consulted.
type PasswordBackend struct {
	mu        sync.Mutex
	Passwords map[string]string
	Roles     map[string][]string
	// VerifyFunc overrides the default behavior when set.
	VerifyFunc func(ctx context.Context, subjectID, credential string) (ports.BackendSession, error)

	calls int
}

// NewPasswordBackend creates a backend with a single login/password pair per entry.
func NewPasswordBackend(passwords map[string]string) *PasswordBackend {
	return &PasswordBackend{Passwords: passwords, Roles: map[string][]string{}}
}

func (b *PasswordBackend) Policy() domainauth.Policy { return domainauth.PolicyRealm }

func (b *PasswordBackend) Verify(ctx context.Context, subjectID, credential string) (ports.BackendSession, error) {
	b.mu.Lock()
	b.calls++
	fn := b.VerifyFunc
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, subjectID, credential)
	}

	b.mu.Lock()
	want, ok := b.Passwords[subjectID]
	roles := b.Roles[subjectID]
	b.mu.Unlock()
	if !ok {
		return nil, apperrors.InvalidCredential(apperrors.ReasonUnknownAccount, nil)
	}
	if want != credential {
		return nil, apperrors.InvalidCredential(apperrors.ReasonBadCredential, nil)
	}
	return &StaticSession{Subj: domainauth.NewSubject(subjectID, roles...), Password: want}, nil
}

// Calls returns how many times Verify ran.
func (b *PasswordBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// StaticSession is a BackendSession that compares against a fixed password.
// An empty Password accepts any credential.
type StaticSession struct {
	Subj     domainauth.Subject
	Password string
	Checks   int
}

func (s *StaticSession) Subject() domainauth.Subject { return s.Subj }

func (s *StaticSession) Authenticated() bool { return true }

func (s *StaticSession) CheckCredential(_ context.Context, credential string) error {
	s.Checks++
	if s.Password != "" && credential != s.Password {
		return apperrors.InvalidCredential(apperrors.ReasonBadCredential, nil)
	}
	return nil
}

// MemoryPrincipalStore is an in-memory realm store.
type MemoryPrincipalStore struct {
	mu       sync.RWMutex
	accounts map[string]domainauth.RealmAccount
	// Err, when set, is returned by every Lookup.
	Err     error
	lookups int
}

// NewMemoryPrincipalStore seeds a store with accounts.
func NewMemoryPrincipalStore(accounts ...domainauth.RealmAccount) *MemoryPrincipalStore {
	s := &MemoryPrincipalStore{accounts: make(map[string]domainauth.RealmAccount)}
	for _, a := range accounts {
		s.accounts[a.Login] = a
	}
	return s
}

func (s *MemoryPrincipalStore) Lookup(_ context.Context, login string) (domainauth.RealmAccount, error) {
	s.mu.Lock()
	s.lookups++
	err := s.Err
	acct, ok := s.accounts[login]
	s.mu.Unlock()
	if err != nil {
		return domainauth.RealmAccount{}, err
	}
	if !ok {
		return domainauth.RealmAccount{}, apperrors.NotFound("account not found")
	}
	return acct, nil
}

// Put adds or replaces an account.
func (s *MemoryPrincipalStore) Put(acct domainauth.RealmAccount) {
	s.mu.Lock()
	s.accounts[acct.Login] = acct
	s.mu.Unlock()
}

// Lookups returns how many times Lookup ran.
func (s *MemoryPrincipalStore) Lookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookups
}

// RecordingListener stores every event it receives.
type RecordingListener struct {
	mu     sync.Mutex
	events []domainauth.SessionEvent
	// Err is returned from every callback when set.
	Err error
	// Panic makes every callback panic with this value when non-nil.
	Panic any
}

func (l *RecordingListener) OnSessionEvent(_ context.Context, evt domainauth.SessionEvent) error {
	l.mu.Lock()
	l.events = append(l.events, evt)
	p, err := l.Panic, l.Err
	l.mu.Unlock()
	if p != nil {
		panic(p)
	}
	return err
}

// Events returns a copy of the recorded events.
func (l *RecordingListener) Events() []domainauth.SessionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domainauth.SessionEvent(nil), l.events...)
}

// Types returns the recorded event types in order.
func (l *RecordingListener) Types() []domainauth.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domainauth.EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

// ErrListener is a convenience failure for listener tests.
var ErrListener = errors.New("listener failed")

// StaticRoleMapper returns fixed roles for any group list.
type StaticRoleMapper struct {
	Roles []string
}

func (m StaticRoleMapper) Map([]string) []string { return append([]string(nil), m.Roles...) }

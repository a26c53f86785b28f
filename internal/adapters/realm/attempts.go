package realm

import (
	"context"
	"sync"
	"time"

	"github.com/target/mmk-sessions/internal/ports"
)

const (
	// DefaultMaxAttempts is the default number of failed attempts before lockout.
	DefaultMaxAttempts = 3

	// DefaultLockoutDuration is the default lockout duration.
	DefaultLockoutDuration = 15 * time.Minute
)

// AttemptRecord tracks consecutive failures for one identifier.
type AttemptRecord struct {
	Count       int
	LastAttempt time.Time
	LockedUntil time.Time
}

func (a *AttemptRecord) locked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// MemoryAttempts is an in-process ports.AttemptTracker.
// It is thread-safe; state is lost on restart.
type MemoryAttempts struct {
	mu              sync.RWMutex
	attempts        map[string]*AttemptRecord
	maxAttempts     int
	lockoutDuration time.Duration
	now             func() time.Time
}

var _ ports.AttemptTracker = (*MemoryAttempts)(nil)

// MemoryAttemptsOption configures MemoryAttempts.
type MemoryAttemptsOption func(*MemoryAttempts)

// WithMaxAttempts sets the failure count that triggers lockout. Zero disables lockout.
func WithMaxAttempts(n int) MemoryAttemptsOption {
	return func(m *MemoryAttempts) {
		if n >= 0 {
			m.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets how long a lockout lasts.
func WithLockoutDuration(d time.Duration) MemoryAttemptsOption {
	return func(m *MemoryAttempts) {
		if d > 0 {
			m.lockoutDuration = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryAttemptsOption {
	return func(m *MemoryAttempts) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryAttempts creates an in-memory attempt tracker.
func NewMemoryAttempts(opts ...MemoryAttemptsOption) *MemoryAttempts {
	m := &MemoryAttempts{
		attempts:        make(map[string]*AttemptRecord),
		maxAttempts:     DefaultMaxAttempts,
		lockoutDuration: DefaultLockoutDuration,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Blocked reports whether identifier is inside a lockout window.
func (m *MemoryAttempts) Blocked(_ context.Context, identifier string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.attempts[identifier]
	return ok && rec.locked(m.now()), nil
}

// Failure records a failed attempt and starts a lockout once the threshold is reached.
func (m *MemoryAttempts) Failure(_ context.Context, identifier string) (bool, error) {
	if m.maxAttempts == 0 {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.attempts[identifier]
	if !ok {
		rec = &AttemptRecord{}
		m.attempts[identifier] = rec
	}
	if !rec.LockedUntil.IsZero() && !rec.locked(now) {
		// Lockout elapsed; start a fresh series.
		rec.Count = 0
		rec.LockedUntil = time.Time{}
	}
	rec.Count++
	rec.LastAttempt = now
	if rec.Count >= m.maxAttempts {
		rec.LockedUntil = now.Add(m.lockoutDuration)
		return true, nil
	}
	return false, nil
}

// Reset clears the record for identifier.
func (m *MemoryAttempts) Reset(_ context.Context, identifier string) error {
	m.mu.Lock()
	delete(m.attempts, identifier)
	m.mu.Unlock()
	return nil
}

// Status returns a copy of the record for identifier, if any.
func (m *MemoryAttempts) Status(identifier string) (AttemptRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.attempts[identifier]
	if !ok {
		return AttemptRecord{}, false
	}
	return *rec, true
}

package data

import (
	"sync"
	"time"
)

// TimeProvider is the clock used by the registry, sweeper and repositories.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the wall clock in UTC at microsecond precision,
// the resolution timestamptz stores, so values round-trip through Postgres unchanged.
type RealTimeProvider struct{}

func (*RealTimeProvider) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FixedTimeProvider is a manually advanced clock for tests.
// It is safe for concurrent use so tests can move time while sessions are checked.
type FixedTimeProvider struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{now: t}
}

func (f *FixedTimeProvider) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// AddTime advances the clock by d and returns the new time.
func (f *FixedTimeProvider) AddTime(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

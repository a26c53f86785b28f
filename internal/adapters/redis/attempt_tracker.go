package redis

// Package redis provides Redis-backed adapters shared across sessiond replicas.

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-sessions/internal/ports"
)

// AttemptTrackerOptions configures an AttemptTracker.
type AttemptTrackerOptions struct {
	Prefix          string
	MaxAttempts     int
	LockoutDuration time.Duration
}

// AttemptTracker counts failed logins in Redis so lockouts hold across replicas.
// The failure counter expires after LockoutDuration of inactivity; the lock
// key expires when the lockout ends.
type AttemptTracker struct {
	client  redis.UniversalClient
	prefix  string
	max     int
	lockout time.Duration
}

var _ ports.AttemptTracker = (*AttemptTracker)(nil)

// failureScript increments the counter, refreshes its TTL, and sets the lock
// key when the threshold is reached. Returns 1 when the call locked the login.
var failureScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
if n >= tonumber(ARGV[1]) then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[2])
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// NewAttemptTracker creates a Redis attempt tracker.
func NewAttemptTracker(client redis.UniversalClient, opts AttemptTrackerOptions) *AttemptTracker {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "mmk:attempts:"
	}
	lockout := opts.LockoutDuration
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &AttemptTracker{client: client, prefix: prefix, max: opts.MaxAttempts, lockout: lockout}
}

func (t *AttemptTracker) countKey(id string) string { return t.prefix + "count:" + id }
func (t *AttemptTracker) lockKey(id string) string  { return t.prefix + "lock:" + id }

// Blocked reports whether the lock key exists.
func (t *AttemptTracker) Blocked(ctx context.Context, identifier string) (bool, error) {
	n, err := t.client.Exists(ctx, t.lockKey(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Failure records a failed attempt.
func (t *AttemptTracker) Failure(ctx context.Context, identifier string) (bool, error) {
	if t.max <= 0 {
		return false, nil
	}
	res, err := failureScript.Run(ctx, t.client,
		[]string{t.countKey(identifier), t.lockKey(identifier)},
		t.max, t.lockout.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis record failure: %w", err)
	}
	return res == 1, nil
}

// Reset clears both keys for identifier.
func (t *AttemptTracker) Reset(ctx context.Context, identifier string) error {
	if err := t.client.Del(ctx, t.countKey(identifier), t.lockKey(identifier)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

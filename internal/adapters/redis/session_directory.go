package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"github.com/target/mmk-sessions/internal/ports"
)

// DirectoryEntry is the public view of a session published to Redis.
// It never carries the secret session id.
type DirectoryEntry struct {
	Name        string
	Subject     string
	State       domainauth.SessionState
	CreatedAt   time.Time
	LastAccess  time.Time
	ClientIP    string
	ClusterNode bool
}

// SessionDirectory mirrors live sessions into Redis hashes keyed by public
// session name so operators and sibling nodes can list them.
type SessionDirectory struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.SessionListener = (*SessionDirectory)(nil)

// NewSessionDirectory creates a directory with the default key prefix.
func NewSessionDirectory(client redis.UniversalClient) *SessionDirectory {
	return NewSessionDirectoryWithPrefix(client, "mmk:sessions:")
}

// NewSessionDirectoryWithPrefix creates a directory with a custom key prefix.
func NewSessionDirectoryWithPrefix(client redis.UniversalClient, prefix string) *SessionDirectory {
	return &SessionDirectory{client: client, prefix: prefix}
}

func (d *SessionDirectory) entryKey(name string) string { return d.prefix + "entry:" + name }
func (d *SessionDirectory) indexKey() string            { return d.prefix + "index" }

// tombstoneTTL bounds how long a removed entry blocks late publishes.
const tombstoneTTL = 5 * time.Minute

// putScript writes the entry unless it already holds a newer event.
// KEYS[1]=entry; ARGV[1]=seq, ARGV[2]=ttl ms (0 persists), ARGV[3:]=field/value pairs.
var putScript = redis.NewScript(`
local seq = tonumber(ARGV[1])
if seq > 0 and tonumber(redis.call('HGET', KEYS[1], 'seq') or '0') >= seq then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'seq', ARGV[1], unpack(ARGV, 3))
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// removeScript replaces the entry with a tombstone unless a newer session
// has reused the name. KEYS[1]=entry; ARGV[1]=seq, ARGV[2]=tombstone ttl ms.
var removeScript = redis.NewScript(`
local seq = tonumber(ARGV[1])
if seq > 0 and tonumber(redis.call('HGET', KEYS[1], 'seq') or '0') > seq then
  return 0
end
redis.call('DEL', KEYS[1])
if seq > 0 then
  redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'gone', '1')
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// OnSessionEvent publishes or removes the entry for the event's session.
// Events older than the last one applied for the same name are dropped.
func (d *SessionDirectory) OnSessionEvent(ctx context.Context, evt domainauth.SessionEvent) error {
	switch evt.Type {
	case domainauth.EventConnected, domainauth.EventReconnected, domainauth.EventRenamed:
		return d.put(ctx, evt.Session, evt.Seq)
	case domainauth.EventDisconnected, domainauth.EventExpired, domainauth.EventKilled:
		return d.remove(ctx, evt.Session.Name, evt.Seq)
	default:
		return nil
	}
}

func (d *SessionDirectory) put(ctx context.Context, s domainauth.Session, seq uint64) error {
	if s.Name == "" {
		return errors.New("session name cannot be empty")
	}
	// Stale entries left behind by a crashed node expire with the session.
	ttl := max(s.Timeout.Milliseconds(), 0)
	applied, err := putScript.Run(ctx, d.client, []string{d.entryKey(s.Name)},
		seq, ttl,
		"name", s.Name,
		"subject", s.Subject.Login,
		"state", string(s.State),
		"created_at", s.CreatedAt.UnixMilli(),
		"last_access", s.LastAccess.UnixMilli(),
		"client_ip", s.ClientIP,
		"cluster_node", s.ClusterNode,
	).Int()
	if err != nil {
		return fmt.Errorf("redis publish session: %w", err)
	}
	if applied == 0 {
		return nil
	}
	if err = d.client.SAdd(ctx, d.indexKey(), s.Name).Err(); err != nil {
		return fmt.Errorf("redis index session: %w", err)
	}
	return nil
}

func (d *SessionDirectory) remove(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return nil
	}
	applied, err := removeScript.Run(ctx, d.client, []string{d.entryKey(name)},
		seq, tombstoneTTL.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis remove session: %w", err)
	}
	if applied == 0 {
		return nil
	}
	if err = d.client.SRem(ctx, d.indexKey(), name).Err(); err != nil {
		return fmt.Errorf("redis unindex session: %w", err)
	}
	return nil
}

// Get returns the entry for name.
func (d *SessionDirectory) Get(ctx context.Context, name string) (DirectoryEntry, error) {
	vals, err := d.client.HGetAll(ctx, d.entryKey(name)).Result()
	if err != nil {
		return DirectoryEntry{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(vals) == 0 || vals["gone"] == "1" {
		return DirectoryEntry{}, ErrNotFound
	}
	return decodeEntry(vals), nil
}

// List returns every live entry. Index members whose hash has expired or
// been tombstoned are pruned.
func (d *SessionDirectory) List(ctx context.Context) ([]DirectoryEntry, error) {
	names, err := d.client.SMembers(ctx, d.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	out := make([]DirectoryEntry, 0, len(names))
	for _, name := range names {
		entry, getErr := d.Get(ctx, name)
		if errors.Is(getErr, ErrNotFound) {
			_ = d.client.SRem(ctx, d.indexKey(), name).Err()
			continue
		}
		if getErr != nil {
			return nil, getErr
		}
		out = append(out, entry)
	}
	return out, nil
}

func decodeEntry(vals map[string]string) DirectoryEntry {
	ms := func(k string) time.Time {
		n, err := strconv.ParseInt(vals[k], 10, 64)
		if err != nil || n == 0 {
			return time.Time{}
		}
		return time.UnixMilli(n).UTC()
	}
	return DirectoryEntry{
		Name:        vals["name"],
		Subject:     vals["subject"],
		State:       domainauth.SessionState(vals["state"]),
		CreatedAt:   ms("created_at"),
		LastAccess:  ms("last_access"),
		ClientIP:    vals["client_ip"],
		ClusterNode: vals["cluster_node"] == "1",
	}
}

// ErrNotFound is returned when a directory entry is not found.
type notFoundError struct{}

func (notFoundError) Error() string { return "session entry not found" }

var ErrNotFound error = notFoundError{}

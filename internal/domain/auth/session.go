package auth

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle position of a session.
type SessionState string

const (
	SessionPending     SessionState = "pending"
	SessionActive      SessionState = "active"
	SessionReconnected SessionState = "reconnected"
	SessionExpired     SessionState = "expired"
	SessionKilled      SessionState = "killed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionExpired || s == SessionKilled
}

// Session is a point-in-time copy of a live session record.
// SecretID is a capability: never log or render it in full.
type Session struct {
	SecretID    string            `json:"-"`
	Name        string            `json:"name"`
	Subject     Subject           `json:"subject"`
	State       SessionState      `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	LastAccess  time.Time         `json:"last_access"`
	Timeout     time.Duration     `json:"timeout"`
	Reconnected bool              `json:"reconnected"`
	ClientIP    string            `json:"client_ip,omitempty"`
	PTPAllowed  bool              `json:"ptp_allowed"`
	ClusterNode bool              `json:"cluster_node"`
	Refresh     bool              `json:"refresh"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// ExpiresAt returns the instant after which the session is stale.
// The zero time means the session never expires.
func (s Session) ExpiresAt() time.Time {
	if s.Timeout <= 0 {
		return time.Time{}
	}
	return s.LastAccess.Add(s.Timeout)
}

// Expired reports whether more than Timeout has elapsed since LastAccess.
func (s Session) Expired(now time.Time) bool {
	if s.Timeout <= 0 {
		return false
	}
	return now.Sub(s.LastAccess) > s.Timeout
}

// Clone returns a copy that shares no mutable state with s.
func (s Session) Clone() Session {
	out := s
	out.Subject.Roles = append([]string(nil), s.Subject.Roles...)
	if s.Properties != nil {
		out.Properties = maps.Clone(s.Properties)
	}
	return out
}

// RedactSecret keeps a short prefix of a secret session id for log correlation.
func RedactSecret(id string) string {
	const keep = 6
	if len(id) <= keep {
		return "***"
	}
	return id[:keep] + "***"
}

// ConnectProperties describes the options of a single connect request.
type ConnectProperties struct {
	UserID                  string
	Credential              string
	SecretSessionID         string
	SessionName             string
	MaxSessions             int
	ClearSessions           bool
	BypassCredential        bool
	ReconnectSameClientOnly bool
	Reconnect               bool
	ClientIP                string
	PTPAllowed              bool
	ClusterNode             bool
	Refresh                 bool
	Timeout                 time.Duration
	Properties              map[string]string
}

// EventType names a session lifecycle transition.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventReconnected  EventType = "reconnected"
	EventDisconnected EventType = "disconnected"
	EventExpired      EventType = "expired"
	EventKilled       EventType = "killed"
	EventRenamed      EventType = "renamed"
)

// SessionEvent is delivered to registry listeners after a transition commits.
type SessionEvent struct {
	ID      uuid.UUID
	Type    EventType
	Session Session
	Reason  string
	At      time.Time
	// Seq increases with every event a registry emits. Listeners run after
	// the registry lock is released, so concurrent transitions can arrive
	// out of order; Seq restores the order. Zero means unordered.
	Seq uint64
	// PreviousSecretID is set for EventRenamed.
	PreviousSecretID string
}

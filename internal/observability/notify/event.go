package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Alert kinds.
const (
	KindAdminKill = "admin_kill"
	KindLockout   = "lockout"
)

// SecurityAlert captures the canonical data we emit for security-relevant session activity.
type SecurityAlert struct {
	Kind        string
	Subject     string
	SessionName string
	ClientIP    string
	Reason      string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Sink describes a destination capable of consuming security alerts.
type Sink interface {
	SendSecurityAlert(ctx context.Context, alert SecurityAlert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert SecurityAlert) error

// SendSecurityAlert implements the Sink interface.
func (f SinkFunc) SendSecurityAlert(ctx context.Context, alert SecurityAlert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}

// Package pagerduty raises session security alerts as PagerDuty Events API v2 triggers.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-sessions/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string // defaults to "mmk-sessions"
	Component  string // defaults to "session-registry"
	Endpoint   string // defaults to APIEndpoint
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client triggers PagerDuty incidents for security alerts.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	poster     notify.Poster
	now        func() time.Time
}

var _ notify.Sink = (*Client)(nil)

// NewClient requires a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, "mmk-sessions"),
		component:  orDefault(cfg.Component, "session-registry"),
		endpoint:   orDefault(cfg.Endpoint, APIEndpoint),
		poster:     notify.NewPoster("pagerduty", cfg.Client, cfg.Timeout, cfg.RetryLimit),
		now:        time.Now,
	}, nil
}

// SendSecurityAlert submits a trigger event.
func (c *Client) SendSecurityAlert(ctx context.Context, alert notify.SecurityAlert) error {
	return c.poster.PostJSON(ctx, c.endpoint, c.buildEvent(alert))
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details"`
}

func (c *Client) buildEvent(alert notify.SecurityAlert) event {
	occurredAt := alert.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = c.now()
	}

	details := make(map[string]string, len(alert.Metadata)+5)
	for k, v := range alert.Metadata {
		details[k] = v
	}
	// Canonical fields win over metadata with the same key.
	for k, v := range map[string]string{
		"kind":         alert.Kind,
		"subject":      alert.Subject,
		"session_name": alert.SessionName,
		"client_ip":    alert.ClientIP,
		"reason":       alert.Reason,
	} {
		if v != "" {
			details[k] = v
		} else {
			delete(details, k)
		}
	}

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		// One open incident per kind and subject; repeats fold into it.
		DedupKey: strings.Trim(alert.Kind+":"+alert.Subject, ":"),
		Payload: eventPayload{
			Summary:       summarize(alert),
			Severity:      severity(alert.Severity),
			Source:        c.source,
			Component:     c.component,
			Timestamp:     occurredAt.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

// severity maps onto PagerDuty's accepted values, defaulting to warning.
func severity(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "critical", "error", "warning", "info":
		return v
	default:
		return notify.SeverityWarning
	}
}

func summarize(alert notify.SecurityAlert) string {
	subject := orDefault(alert.Subject, "unknown")
	switch alert.Kind {
	case notify.KindAdminKill:
		return fmt.Sprintf("Sessions of %s killed by an administrator", subject)
	case notify.KindLockout:
		return fmt.Sprintf("Login %s locked after repeated failures", subject)
	default:
		return fmt.Sprintf("Session security alert for %s", subject)
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

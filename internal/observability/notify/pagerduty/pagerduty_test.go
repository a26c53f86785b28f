package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-sessions/internal/observability/notify"
)

func TestNewClientRequiresRoutingKey(t *testing.T) {
	_, err := NewClient(Config{RoutingKey: "  "})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)
	client.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

	ev := client.buildEvent(notify.SecurityAlert{
		Kind:     notify.KindLockout,
		Subject:  "alice",
		ClientIP: "10.0.0.1",
		Metadata: map[string]string{"subject": "ignored", "attempts": "5", "reason": "stale"},
	})

	assert.Equal(t, "trigger", ev.EventAction)
	assert.Equal(t, "lockout:alice", ev.DedupKey)
	assert.Equal(t, notify.SeverityWarning, ev.Payload.Severity)
	assert.Equal(t, "mmk-sessions", ev.Payload.Source)
	assert.Equal(t, "session-registry", ev.Payload.Component)
	assert.Equal(t, "2024-01-01T12:00:00Z", ev.Payload.Timestamp)
	assert.Equal(t, "Login alice locked after repeated failures", ev.Payload.Summary)
	assert.Equal(t, map[string]string{
		"kind":      "lockout",
		"subject":   "alice",
		"client_ip": "10.0.0.1",
		"attempts":  "5",
	}, ev.Payload.CustomDetails)
}

func TestBuildEventSeverity(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	ev := client.buildEvent(notify.SecurityAlert{Kind: notify.KindAdminKill, Severity: "CRITICAL"})
	assert.Equal(t, notify.SeverityCritical, ev.Payload.Severity)
	assert.Equal(t, "admin_kill", ev.DedupKey)

	ev = client.buildEvent(notify.SecurityAlert{Severity: "page-everyone"})
	assert.Equal(t, notify.SeverityWarning, ev.Payload.Severity)
}

func TestSendSecurityAlertPostsEvent(t *testing.T) {
	var got event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, client.SendSecurityAlert(context.Background(), notify.SecurityAlert{
		Kind:    notify.KindAdminKill,
		Subject: "bob",
	}))

	assert.Equal(t, "rk", got.RoutingKey)
	assert.Equal(t, "Sessions of bob killed by an administrator", got.Payload.Summary)
}

func TestSendSecurityAlertRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"status":"invalid event"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL, RetryLimit: 3})
	require.NoError(t, err)

	err = client.SendSecurityAlert(context.Background(), notify.SecurityAlert{Subject: "bob"})
	var de *notify.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusBadRequest, de.Status)
	assert.Contains(t, de.Body, "invalid event")
}

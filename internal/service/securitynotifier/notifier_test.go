package securitynotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-sessions/internal/data"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/observability/notify"
	"github.com/target/mmk-sessions/internal/service"
	"github.com/target/mmk-sessions/internal/testutil"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []notify.SecurityAlert
}

func (c *captureSink) SendSecurityAlert(_ context.Context, alert notify.SecurityAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *captureSink) received() []notify.SecurityAlert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.SecurityAlert(nil), c.alerts...)
}

func newNotifier(sink notify.Sink, clock *data.FixedTimeProvider) *Service {
	return NewService(Options{
		Sinks: []SinkRegistration{{Name: "capture", Sink: sink}},
		Clock: clock,
	})
}

func killedEvent(reason string) domainauth.SessionEvent {
	return domainauth.SessionEvent{
		Type:   domainauth.EventKilled,
		Reason: reason,
		At:     testutil.TestTime(),
		Session: domainauth.Session{
			Name:     "alice-1",
			Subject:  domainauth.NewSubject("alice"),
			ClientIP: "10.0.0.1",
		},
	}
}

func TestService_AdminKillAlerts(t *testing.T) {
	sink := &captureSink{}
	svc := newNotifier(sink, data.NewFixedTimeProvider(testutil.TestTime()))
	ctx := context.Background()

	require.NoError(t, svc.OnSessionEvent(ctx, killedEvent(service.ReasonCleared)))
	require.NoError(t, svc.OnSessionEvent(ctx, domainauth.SessionEvent{Type: domainauth.EventExpired}))
	require.NoError(t, svc.OnSessionEvent(ctx, killedEvent(service.ReasonAdminKill)))
	svc.Wait()

	got := sink.received()
	require.Len(t, got, 1)
	assert.Equal(t, notify.KindAdminKill, got[0].Kind)
	assert.Equal(t, "alice", got[0].Subject)
	assert.Equal(t, "alice-1", got[0].SessionName)
	assert.Equal(t, "10.0.0.1", got[0].ClientIP)
	assert.Equal(t, notify.SeverityWarning, got[0].Severity)
}

func TestService_LockoutAlertsWithCooldown(t *testing.T) {
	sink := &captureSink{}
	clock := data.NewFixedTimeProvider(testutil.TestTime())
	svc := newNotifier(sink, clock)
	blocked := apperrors.TooManyAttempts()

	svc.ConnectFailed("alice", apperrors.InvalidCredential(apperrors.ReasonBadCredential, nil))
	svc.ConnectFailed("", blocked)
	svc.ConnectFailed("alice", blocked)
	svc.ConnectFailed("alice", blocked)
	svc.Wait()
	require.Len(t, sink.received(), 1)
	assert.Equal(t, notify.KindLockout, sink.received()[0].Kind)

	clock.AddTime(11 * time.Minute)
	svc.ConnectFailed("alice", blocked)
	svc.ConnectFailed("bob", blocked)
	svc.Wait()
	assert.Len(t, sink.received(), 3)
}

func TestService_SinkErrorsAreLogged(t *testing.T) {
	var calls int
	var mu sync.Mutex
	svc := NewService(Options{
		Sinks: []SinkRegistration{
			{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.SecurityAlert) error {
				mu.Lock()
				calls++
				mu.Unlock()
				return errors.New("boom")
			})},
			{Name: "nil"},
		},
	})
	assert.True(t, svc.Enabled())

	svc.Notify(context.Background(), notify.SecurityAlert{Kind: notify.KindAdminKill, Subject: "alice"})
	svc.Wait()
	assert.Equal(t, 1, calls)
}

func TestService_DeliveryOutlivesCallerContext(t *testing.T) {
	sink := &captureSink{}
	svc := newNotifier(sink, data.NewFixedTimeProvider(testutil.TestTime()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.OnSessionEvent(ctx, killedEvent(service.ReasonAdminKill)))
	cancel()
	svc.Wait()
	assert.Len(t, sink.received(), 1)
}

func TestService_Disabled(t *testing.T) {
	svc := NewService(Options{})
	assert.False(t, svc.Enabled())
	svc.Notify(context.Background(), notify.SecurityAlert{Kind: notify.KindLockout})
	svc.Wait()
}

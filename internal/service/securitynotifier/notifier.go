// Package securitynotifier forwards security-relevant session activity to alert sinks.
package securitynotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/observability/notify"
	"github.com/target/mmk-sessions/internal/ports"
	"github.com/target/mmk-sessions/internal/service"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCooldown = 10 * time.Minute

	maxParallelSinks = 4
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the security notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Timeout bounds one fan-out to all sinks.
	Timeout time.Duration
	// Cooldown suppresses repeats of the same kind for the same subject.
	Cooldown time.Duration
	Clock    ports.Clock
}

// Service dispatches security alerts to all registered sinks in the background.
// It implements ports.SessionListener and service.ConnectFailureRecorder.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	timeout  time.Duration
	cooldown time.Duration
	clock    ports.Clock

	mu       sync.Mutex
	lastSent map[string]time.Time
	wg       sync.WaitGroup
}

var (
	_ ports.SessionListener          = (*Service)(nil)
	_ service.ConnectFailureRecorder = (*Service)(nil)
)

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// NewService constructs a security notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cooldown := opts.Cooldown
	if cooldown < 0 {
		cooldown = 0
	} else if cooldown == 0 {
		cooldown = defaultCooldown
	}
	clock := opts.Clock
	if clock == nil {
		clock = wallClock{}
	}

	return &Service{
		logger:   logger.With("component", "security_notifier"),
		sinks:    sinks,
		timeout:  timeout,
		cooldown: cooldown,
		clock:    clock,
		lastSent: make(map[string]time.Time),
	}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// OnSessionEvent raises an alert when an administrator kills a session.
func (s *Service) OnSessionEvent(ctx context.Context, evt domainauth.SessionEvent) error {
	if evt.Type != domainauth.EventKilled || evt.Reason != service.ReasonAdminKill {
		return nil
	}
	s.Notify(ctx, notify.SecurityAlert{
		Kind:        notify.KindAdminKill,
		Subject:     evt.Session.Subject.Login,
		SessionName: evt.Session.Name,
		ClientIP:    evt.Session.ClientIP,
		Reason:      evt.Reason,
		Severity:    notify.SeverityWarning,
		OccurredAt:  evt.At,
	})
	return nil
}

// ConnectFailed raises an alert when a login is blocked after repeated failures.
func (s *Service) ConnectFailed(userID string, err error) {
	if userID == "" || !apperrors.IsTooManyAttempts(err) {
		return
	}
	s.Notify(context.Background(), notify.SecurityAlert{
		Kind:       notify.KindLockout,
		Subject:    userID,
		Reason:     string(apperrors.GetReason(err)),
		Severity:   notify.SeverityWarning,
		OccurredAt: s.clock.Now(),
	})
}

// Notify fans the alert out to every sink without blocking the caller.
// Repeats within the cooldown are dropped.
func (s *Service) Notify(ctx context.Context, alert notify.SecurityAlert) {
	if len(s.sinks) == 0 || !s.admit(alert) {
		return
	}
	if alert.Severity == "" {
		alert.Severity = notify.SeverityWarning
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.fanOut(sendCtx, alert)
	}()
}

// Wait blocks until every in-flight alert has been delivered or has failed.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) admit(alert notify.SecurityAlert) bool {
	key := alert.Kind + ":" + alert.Subject
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && now.Sub(last) < s.cooldown {
		return false
	}
	s.lastSent[key] = now
	return true
}

func (s *Service) fanOut(ctx context.Context, alert notify.SecurityAlert) {
	var g errgroup.Group
	g.SetLimit(maxParallelSinks)
	for _, entry := range s.sinks {
		g.Go(func() error {
			if err := entry.Sink.SendSecurityAlert(ctx, alert); err != nil {
				s.logger.Error("security alert delivery error",
					"sink", entry.Name,
					"kind", alert.Kind,
					"subject", alert.Subject,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

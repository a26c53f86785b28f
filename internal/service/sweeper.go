package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/target/mmk-sessions/config"
	"github.com/target/mmk-sessions/internal/observability/metrics"
	"github.com/target/mmk-sessions/internal/observability/statsd"
)

// ExpirySweeper is the registry surface the sweeper drives.
type ExpirySweeper interface {
	Sweep(ctx context.Context) int
	Len() int
}

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Registry ExpirySweeper        // Required: session registry
	Config   config.SweeperConfig // Required: sweeper configuration
	Logger   *slog.Logger         // Optional: structured logger
	Metrics  statsd.Sink          // Optional: metrics sink (StatsD-compatible)
	Active   ActiveSessionGauge   // Optional: resynced after every sweep
}

// ActiveSessionGauge receives the registry size after each sweep.
type ActiveSessionGauge interface {
	SetActive(n int)
}

// SweeperService proactively evicts expired sessions so an idle registry
// does not hold on to them until their next lookup.
type SweeperService struct {
	registry ExpirySweeper
	config   config.SweeperConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	active   ActiveSessionGauge
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("sweeper interval must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper_service")
		logger.Debug("SweeperService initialized", "interval", opts.Config.Interval)
	}

	return &SweeperService{
		registry: opts.Registry,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		active:   opts.Active,
	}, nil
}

// Run sweeps at the configured interval until ctx is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SweeperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper service", "interval", s.config.Interval)
	}

	// Spread replicas that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single eviction pass and returns the number of sessions removed.
func (s *SweeperService) SweepOnce(ctx context.Context) int {
	start := time.Now()
	evicted := s.registry.Sweep(ctx)
	s.emitSweepMetrics(evicted, time.Since(start))
	if s.active != nil {
		s.active.SetActive(s.registry.Len())
	}

	if evicted > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "evicted expired sessions", "count", evicted)
	}
	return evicted
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *SweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *SweeperService) emitSweepMetrics(evicted int, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if evicted == 0 {
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}

	s.metrics.Count("sweeper.run", 1, tags)
	if evicted > 0 {
		s.metrics.Count("sweeper.evicted", int64(evicted), metrics.CloneTags(tags))
	}
	if elapsed > 0 {
		s.metrics.Timing("sweeper.run_duration", elapsed, metrics.CloneTags(tags))
	}
	s.metrics.Gauge("sessions.held", float64(s.registry.Len()), nil)
	s.metrics.Gauge("sweeper.last_success_epoch", float64(time.Now().Unix()), nil)
}

// Package sweeper provides adapters for running the expired session sweeper.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-sessions/config"
	"github.com/target/mmk-sessions/internal/observability/statsd"
	"github.com/target/mmk-sessions/internal/service"
)

// Runner provides a simple adapter to run the sweeper loop.
type Runner struct {
	sweeper *service.SweeperService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Registry service.ExpirySweeper
	Config   config.SweeperConfig
	Logger   *slog.Logger
	Metrics  statsd.Sink
	Active   service.ActiveSessionGauge
}

// NewRunner creates a new sweeper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc, err := service.NewSweeperService(service.SweeperServiceOptions{
		Registry: opts.Registry,
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		Active:   opts.Active,
	})
	if err != nil {
		return nil, fmt.Errorf("wire sweeper service: %w", err)
	}

	return &Runner{sweeper: svc, logger: opts.Logger}, nil
}

// Run starts the sweeper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper runner")
	return r.sweeper.Run(ctx)
}

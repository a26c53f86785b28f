package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/target/mmk-sessions/config"
	redisadapter "github.com/target/mmk-sessions/internal/adapters/redis"
	"github.com/target/mmk-sessions/internal/adapters/sweeper"
	"github.com/target/mmk-sessions/internal/observability/metrics"
	"github.com/target/mmk-sessions/internal/observability/notify/pagerduty"
	"github.com/target/mmk-sessions/internal/observability/notify/slack"
	"github.com/target/mmk-sessions/internal/observability/statsd"
	"github.com/target/mmk-sessions/internal/ports"
	"github.com/target/mmk-sessions/internal/service"
	"github.com/target/mmk-sessions/internal/service/securitynotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Registry      *service.SessionRegistry
	Sessions      *service.ConnectService
	Credentials   CredentialRuntime
	Directory     *redisadapter.SessionDirectory // nil unless SESSION_DIRECTORY_ENABLED
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink      *statsd.Client
	MetricsConfig    config.ObservabilityMetricsConfig
	Sessions         *metrics.SessionMetrics
	Prometheus       *prometheus.Registry
	MetricsHandler   http.Handler // nil when the Prometheus endpoint is disabled
	SecurityNotifier *securitynotifier.Service
	AlertsConfig     config.ObservabilityAlertsConfig
}

// sink returns the StatsD client as a Sink, or nil when metrics are off.
//
//nolint:ireturn // callers only need the Sink contract.
func (o ObservabilityContainer) sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.Metrics.StatsdAddress,
			Prefix:        "mmk_sessions",
			GlobalTags:    cfg.Metrics.Tags,
			FlushInterval: cfg.Metrics.FlushInterval,
			Logger:        obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	container := ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
		AlertsConfig:  cfg.Alerts,
	}

	sessionOpts := metrics.SessionMetricsOptions{
		Sink:      container.sink(),
		Namespace: cfg.Prometheus.Namespace,
	}
	if cfg.Prometheus.Enabled {
		reg := metrics.NewRegistry()
		sessionOpts.Registerer = reg
		container.Prometheus = reg
		container.MetricsHandler = metrics.Handler(reg, obsLogger)
	}
	container.Sessions = metrics.NewSessionMetrics(sessionOpts)
	container.SecurityNotifier = buildSecurityNotifier(obsLogger, cfg.Alerts)

	return container
}

func buildSecurityNotifier(logger *slog.Logger, cfg config.ObservabilityAlertsConfig) *securitynotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return securitynotifier.NewService(securitynotifier.Options{
			Logger: baseLogger,
		})
	}

	sinks := make([]securitynotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:       cfg.Slack.WebhookURL,
			Channel:          cfg.Slack.Channel,
			Username:         cfg.Slack.Username,
			Timeout:          cfg.Timeout,
			RetryLimit:       cfg.RetryLimit,
			SubjectURLPrefix: cfg.Slack.SubjectURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, securitynotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, securitynotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return securitynotifier.NewService(securitynotifier.Options{
		Logger: baseLogger,
		Sinks:  sinks,
		// Each fan-out retries per sink, so leave room for the retries.
		Timeout: cfg.Timeout * time.Duration(cfg.RetryLimit+1),
	})
}

// buildListeners returns the registry listeners in delivery order.
func buildListeners(observability ObservabilityContainer, directory *redisadapter.SessionDirectory) []ports.SessionListener {
	listeners := []ports.SessionListener{observability.Sessions}
	if observability.SecurityNotifier != nil && observability.SecurityNotifier.Enabled() {
		listeners = append(listeners, observability.SecurityNotifier)
	}
	if directory != nil {
		listeners = append(listeners, directory)
	}
	return listeners
}

func buildFailureRecorders(observability ObservabilityContainer) []service.ConnectFailureRecorder {
	recorders := []service.ConnectFailureRecorder{observability.Sessions}
	if observability.SecurityNotifier != nil && observability.SecurityNotifier.Enabled() {
		recorders = append(recorders, observability.SecurityNotifier)
	}
	return recorders
}

func newSessionDirectory(cfg config.SessionConfig, client redis.UniversalClient, logger *slog.Logger) *redisadapter.SessionDirectory {
	if !cfg.DirectoryEnabled {
		return nil
	}
	if client == nil {
		logger.Warn("session directory disabled: redis client not configured")
		return nil
	}
	return redisadapter.NewSessionDirectoryWithPrefix(client, cfg.DirectoryPrefix)
}

// NewServices wires the credential backend, the session registry and its listeners.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := deps.Config

	observability := buildObservability(logger, appCfg.Observability)

	creds, err := BuildCredentialBackend(CredentialConfig{
		Auth:        appCfg.Auth,
		IsDev:       appCfg.IsDev,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build credential backend: %w", err)
	}

	directory := newSessionDirectory(appCfg.Session, deps.RedisClient, logger)

	registry, err := service.NewSessionRegistry(service.RegistryOptions{
		Backend:       creds.Backend,
		Logger:        logger,
		Listeners:     buildListeners(observability, directory),
		AllowBypass:   appCfg.Auth.AllowBypassCredential,
		AllowForcedID: appCfg.Auth.AllowForcedSessionID,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	sessions, err := service.NewConnectService(service.ConnectServiceOptions{
		Registry: registry,
		Defaults: service.ConnectDefaults{
			Timeout:     appCfg.Session.DefaultTimeout,
			MaxSessions: appCfg.Session.DefaultMaxSessions,
		},
		Logger:   logger,
		Failures: buildFailureRecorders(observability),
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	logger.Info("session services ready",
		"policy", creds.Backend.Policy(),
		"bypass_allowed", appCfg.Auth.AllowBypassCredential,
		"forced_id_allowed", appCfg.Auth.AllowForcedSessionID,
		"directory", directory != nil,
		"security_alerts", observability.SecurityNotifier.Enabled(),
	)

	return ServiceContainer{
		Registry:      registry,
		Sessions:      sessions,
		Credentials:   creds,
		Directory:     directory,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
	// always runs the service regardless of SERVICES.
	always bool
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:    deps.cfg.Config,
		Services:  deps.cfg.Services,
		Logger:    deps.logger,
		Readiness: ReadinessChecks(deps.cfg.DB, deps.cfg.RedisClient),
		ErrCh:     deps.errCh,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || (!descriptor.always && !deps.enabledServices[descriptor.mode]) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newSweeperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeSweeper,
		name: "sweeper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Services.Registry == nil {
				return nil
			}
			var sweeperCfg config.SweeperConfig
			if deps.cfg.Config != nil {
				sweeperCfg = deps.cfg.Config.Sweeper
			}
			obs := deps.cfg.Services.Observability
			runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
				Registry: deps.cfg.Services.Registry,
				Config:   sweeperCfg,
				Logger:   deps.logger,
				Metrics:  obs.sink(),
				Active:   obs.Sessions,
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx)
		},
	}
}

// newRealmWatchBackgroundService reloads the realm file on change. It is not a
// SERVICES mode: it runs whenever accounts come from a watched file.
func newRealmWatchBackgroundService(deps *serviceStartupDeps) (backgroundService, bool) {
	if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
		return backgroundService{}, false
	}
	fs := deps.cfg.Services.Credentials.RealmFile
	if fs == nil || !deps.cfg.Config.Auth.Realm.Watch {
		return backgroundService{}, false
	}
	return backgroundService{
		mode:   "realm-watch",
		name:   "realm watcher",
		start:  fs.Watch,
		always: true,
	}, true
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	services := []backgroundService{newSweeperBackgroundService(deps)}
	if watch, ok := newRealmWatchBackgroundService(deps); ok {
		services = append(services, watch)
	}
	return services
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		notifier:    cfg.Services.Observability.SecurityNotifier,
		metricsSink: cfg.Services.Observability.MetricsSink,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	// One extra slot for the realm watcher.
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	notifier    *securitynotifier.Service
	metricsSink *statsd.Client
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	var stopErr error

	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		// The service context is already canceled; shutdown gets its own budget.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), shutdownWaitTimeout)
		defer cancel()

		stopErr = ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		})
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	// Let in-flight security alerts reach their sinks.
	if cfg.notifier != nil {
		waitForService(notifierDone(cfg.notifier), "security notifier", cfg.logger)
	}

	if err := cfg.metricsSink.Close(); err != nil {
		cfg.logger.Warn("close statsd client", "error", err)
	}

	return stopErr
}

func notifierDone(n *securitynotifier.Service) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	return done
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}

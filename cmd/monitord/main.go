package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"arbiguard/internal/daemon"
	"arbiguard/internal/monitoring"
	"arbiguard/internal/notifier"
	"arbiguard/internal/observability/logging"
	"arbiguard/internal/resilience/circuitbreaker"
	"arbiguard/internal/resilience/health"
	"arbiguard/internal/resilience/recovery"
	"arbiguard/pkg/config"
)

func main() {
	logger := buildLogger()
	slog.SetDefault(logger)

	cfg := daemon.LoadConfigFromEnv()
	logger.Info("monitor configuration loaded",
		slog.Duration("health_interval", cfg.HealthInterval),
		slog.Duration("metrics_interval", cfg.MetricsInterval),
		slog.Duration("recovery_cooldown", cfg.RecoveryCooldown),
		slog.Int("metrics_port", cfg.MetricsPort),
		slog.Bool("slack_enabled", cfg.SlackEnabled))

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := circuitbreaker.NewRegistry()
	registerServiceBreakers(registry)

	engine := health.NewEngine()
	orchestrator := recovery.NewOrchestrator(cfg.RecoveryCooldown)
	registerDefaultChecks(logger, engine, registry)
	registerDefaultActions(logger, orchestrator, registry)

	collector := monitoring.NewCollector(cfg.MetricsHistorySize)
	registerProducers(logger, collector, registry, engine)

	baselines := monitoring.NewBaselineTracker()
	baselines.Track("runtime_heap_alloc_bytes", cfg.BaselineWindow, 50)
	baselines.Track("runtime_goroutines", cfg.BaselineWindow, 100)

	alerts := monitoring.NewAlertManager(buildNotifier(logging.WithComponent(logger, "notifier"), cfg))
	registerDefaultAlerts(logger, alerts)

	srv := newStatusServer(cfg, collector, registry, engine, orchestrator, alerts)
	srv.start(ctx, logging.WithComponent(logger, "status_server"))

	startCronCycles(ctx, logging.WithComponent(logger, "scheduler"), cfg, engine, orchestrator, collector, alerts, baselines)
	srv.setReady(true)
	logger.Info("monitor marked as ready")

	<-ctx.Done()
	logger.Info("shutdown signal received")
}

// buildLogger selects the log output format: JSON by default, text when
// LOG_FORMAT=text for local development.
func buildLogger() *slog.Logger {
	if strings.EqualFold(config.GetEnvString("LOG_FORMAT", "json"), "text") {
		return logging.NewTextLogger()
	}
	return logging.NewLogger()
}

// registerServiceBreakers pre-creates one breaker per protected resource
// so dashboards and alerts see them before the first call flows through.
func registerServiceBreakers(registry *circuitbreaker.Registry) {
	registry.GetOrCreate("amazon_scraper", circuitbreaker.ScraperConfig())
	registry.GetOrCreate("ebay_scraper", circuitbreaker.ScraperConfig())
	registry.GetOrCreate("marketplace_api", circuitbreaker.MarketplaceAPIConfig())
	registry.GetOrCreate("database", circuitbreaker.DatabaseConfig())
	registry.GetOrCreate("redis_cache", circuitbreaker.CacheConfig())
}

// registerDefaultChecks wires the monitor's built-in self checks.
// Collaborators owning real resources (DB pools, scrapers) register their
// own checks on top of these at startup.
func registerDefaultChecks(logger *slog.Logger, engine *health.Engine, registry *circuitbreaker.Registry) {
	err := engine.Register(health.Check{
		Name:     "circuit_breakers",
		Critical: true,
		Timeout:  5 * time.Second,
		Probe: func(ctx context.Context) (health.Status, string, error) {
			open := registry.OpenBreakers()
			switch {
			case len(open) == 0:
				return health.StatusHealthy, "all circuits closed", nil
			case len(open) < len(registry.Names()):
				return health.StatusDegraded, "open circuits: " + strings.Join(open, ", "), nil
			default:
				return health.StatusUnhealthy, "every circuit is open", nil
			}
		},
		RecoveryActions: []string{"reset_circuit_breakers"},
	})
	if err != nil {
		logger.Error("failed to register health check", slog.Any("error", err))
		os.Exit(1)
	}

	err = engine.Register(health.Check{
		Name:    "goroutines",
		Timeout: 5 * time.Second,
		Probe: func(ctx context.Context) (health.Status, string, error) {
			n := runtime.NumGoroutine()
			switch {
			case n > 10000:
				return health.StatusUnhealthy, "goroutine count extremely high", nil
			case n > 2000:
				return health.StatusDegraded, "goroutine count elevated", nil
			default:
				return health.StatusHealthy, "goroutine count normal", nil
			}
		},
	})
	if err != nil {
		logger.Error("failed to register health check", slog.Any("error", err))
		os.Exit(1)
	}
}

// registerDefaultActions wires the remediations the monitor can perform
// on its own.
func registerDefaultActions(logger *slog.Logger, orchestrator *recovery.Orchestrator, registry *circuitbreaker.Registry) {
	err := orchestrator.Register(recovery.Action{
		Name:       "reset_circuit_breakers",
		Timeout:    10 * time.Second,
		RetryCount: 1,
		RetryDelay: 5 * time.Second,
		Run: func(ctx context.Context) error {
			registry.ResetAll()
			return nil
		},
	})
	if err != nil {
		logger.Error("failed to register recovery action", slog.Any("error", err))
		os.Exit(1)
	}
}

func registerProducers(logger *slog.Logger, collector *monitoring.Collector, registry *circuitbreaker.Registry, engine *health.Engine) {
	producers := map[string]monitoring.Producer{
		"circuit_breakers": monitoring.BreakerMetrics(registry),
		"health_checks":    monitoring.HealthMetrics(engine),
		"runtime":          monitoring.RuntimeMetrics(),
	}
	for name, p := range producers {
		if err := collector.RegisterProducer(name, p); err != nil {
			logger.Error("failed to register metric producer",
				slog.String("producer", name),
				slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// buildNotifier picks the alert delivery transport: the Slack webhook
// when configured, otherwise the structured log.
func buildNotifier(logger *slog.Logger, cfg daemon.Config) notifier.Notifier {
	if !cfg.SlackEnabled {
		logger.Info("alert notifications go to the log (Slack disabled)")
		return notifier.NewLogNotifier(logger)
	}

	slack, err := notifier.NewSlack(notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: cfg.SlackWebhookURL,
		Timeout:    cfg.SlackTimeout,
	})
	if err != nil {
		logger.Warn("invalid Slack configuration, falling back to log notifier",
			slog.Any("error", err))
		return notifier.NewLogNotifier(logger)
	}
	logger.Info("Slack alert notifications enabled")
	return slack
}

func registerDefaultAlerts(logger *slog.Logger, alerts *monitoring.AlertManager) {
	rules := []monitoring.Alert{
		{
			Name: "circuit_breakers_open",
			Predicate: func(s monitoring.Snapshot) bool {
				return s.ValueOr("circuit_breakers_open", 0) > 0
			},
			Severity: notifier.SeverityError,
			Message: func(s monitoring.Snapshot) string {
				return "one or more circuit breakers are open"
			},
			Cooldown: 5 * time.Minute,
		},
		{
			Name: "system_unhealthy",
			Predicate: func(s monitoring.Snapshot) bool {
				return s.ValueOr("health_overall_status", 0) >= float64(health.StatusUnhealthy)
			},
			Severity: notifier.SeverityCritical,
			Message: func(s monitoring.Snapshot) string {
				return "overall health is unhealthy or critical"
			},
			Cooldown: 5 * time.Minute,
		},
		{
			Name: "goroutine_leak",
			Predicate: func(s monitoring.Snapshot) bool {
				return s.ValueOr("runtime_goroutines", 0) > 5000
			},
			Severity: notifier.SeverityWarning,
			Message: func(s monitoring.Snapshot) string {
				return "goroutine count suggests a leak"
			},
			Cooldown: 10 * time.Minute,
		},
	}
	for _, rule := range rules {
		if err := alerts.Register(rule); err != nil {
			logger.Error("failed to register alert rule",
				slog.String("alert", rule.Name),
				slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// startCronCycles schedules the two background loops: health/recovery and
// metrics/alerting. Both run once immediately so the first snapshot does
// not wait a full interval.
func startCronCycles(
	ctx context.Context,
	logger *slog.Logger,
	cfg daemon.Config,
	engine *health.Engine,
	orchestrator *recovery.Orchestrator,
	collector *monitoring.Collector,
	alerts *monitoring.AlertManager,
	baselines *monitoring.BaselineTracker,
) {
	healthCycle := func() { runHealthCycle(ctx, logger, cfg, engine, orchestrator) }
	metricsCycle := func() { runMetricsCycle(ctx, logger, cfg, collector, alerts, baselines) }

	healthCycle()
	metricsCycle()

	c := cron.New()
	if _, err := c.AddFunc("@every "+cfg.HealthInterval.String(), healthCycle); err != nil {
		logger.Error("failed to schedule health cycle", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := c.AddFunc("@every "+cfg.MetricsInterval.String(), metricsCycle); err != nil {
		logger.Error("failed to schedule metrics cycle", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		logger.Info("cron cycles stopped")
	}()

	logger.Info("monitor cycles started",
		slog.String("health_schedule", "@every "+cfg.HealthInterval.String()),
		slog.String("metrics_schedule", "@every "+cfg.MetricsInterval.String()))
}

// runHealthCycle executes one health check pass followed by recovery
// evaluation. Errors never escape: the loop must survive any component
// failure.
func runHealthCycle(ctx context.Context, logger *slog.Logger, cfg daemon.Config, engine *health.Engine, orchestrator *recovery.Orchestrator) {
	startTime := time.Now()
	cctx, cancel := context.WithTimeout(ctx, cfg.HealthInterval)
	defer cancel()

	results := engine.RunChecks(cctx)
	orchestrator.Evaluate(cctx, results)

	summary := engine.Summary()
	logger.Info("health cycle completed",
		slog.String("overall", summary.Overall.String()),
		slog.Int("checks", summary.Total),
		slog.Int("failing", summary.Unhealthy+summary.Critical),
		slog.Duration("duration", time.Since(startTime)))
}

// runMetricsCycle executes one metrics collection pass followed by alert
// evaluation and baseline tracking.
func runMetricsCycle(ctx context.Context, logger *slog.Logger, cfg daemon.Config, collector *monitoring.Collector, alerts *monitoring.AlertManager, baselines *monitoring.BaselineTracker) {
	startTime := time.Now()
	cctx, cancel := context.WithTimeout(ctx, cfg.MetricsInterval)
	defer cancel()

	collector.Collect(cctx)
	snap := collector.Snapshot()
	alerts.Evaluate(cctx, snap)
	baselines.Observe(snap)

	logger.Debug("metrics cycle completed",
		slog.Int("series", snap.Len()),
		slog.Duration("duration", time.Since(startTime)))
}

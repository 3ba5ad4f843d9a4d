// Package daemon holds the runtime configuration of the monitoring
// process.
package daemon

import (
	"log/slog"
	"time"

	"arbiguard/pkg/config"
)

// Config is the monitord process configuration, loaded from environment
// variables with warn-and-default semantics: a bad value never prevents
// the monitor from starting, because the monitor is exactly what you want
// running when everything else is misconfigured.
type Config struct {
	// HealthInterval is the period of the health check / recovery cycle.
	HealthInterval time.Duration

	// MetricsInterval is the period of the metrics collection / alert
	// evaluation cycle.
	MetricsInterval time.Duration

	// RecoveryCooldown is the minimum gap between recovery attempts for
	// one health check.
	RecoveryCooldown time.Duration

	// MetricsPort is the HTTP port serving /metrics and the status
	// endpoints.
	MetricsPort int

	// MetricsHistorySize bounds the per-series sample history.
	MetricsHistorySize int

	// BaselineWindow is the sample window for baseline tracking.
	BaselineWindow int

	// SlackEnabled switches alert delivery from the log notifier to the
	// Slack webhook.
	SlackEnabled bool

	// SlackWebhookURL is the Slack Incoming Webhook URL.
	SlackWebhookURL string

	// SlackTimeout is the HTTP timeout for webhook calls.
	SlackTimeout time.Duration
}

// Defaults for every tunable.
const (
	DefaultHealthInterval     = 60 * time.Second
	DefaultMetricsInterval    = 30 * time.Second
	DefaultRecoveryCooldown   = 300 * time.Second
	DefaultMetricsPort        = 9090
	DefaultMetricsHistorySize = 1000
	DefaultBaselineWindow     = 100
	DefaultSlackTimeout       = 10 * time.Second
)

// LoadConfigFromEnv reads the configuration from environment variables.
//
// Environment variables:
//   - MONITOR_HEALTH_INTERVAL: health/recovery cycle period (default: 60s)
//   - MONITOR_METRICS_INTERVAL: metrics/alert cycle period (default: 30s)
//   - MONITOR_RECOVERY_COOLDOWN: per-check recovery cooldown (default: 300s)
//   - MONITOR_METRICS_PORT: metrics/status HTTP port (default: 9090)
//   - MONITOR_METRICS_HISTORY: per-series history size (default: 1000)
//   - MONITOR_BASELINE_WINDOW: baseline sample window (default: 100)
//   - SLACK_NOTIFICATIONS_ENABLED: deliver alerts to Slack (default: false)
//   - SLACK_WEBHOOK_URL: Slack Incoming Webhook URL
//   - SLACK_TIMEOUT: webhook HTTP timeout (default: 10s)
func LoadConfigFromEnv() Config {
	cfg := Config{
		HealthInterval:     config.GetEnvDuration("MONITOR_HEALTH_INTERVAL", DefaultHealthInterval),
		MetricsInterval:    config.GetEnvDuration("MONITOR_METRICS_INTERVAL", DefaultMetricsInterval),
		RecoveryCooldown:   config.GetEnvDuration("MONITOR_RECOVERY_COOLDOWN", DefaultRecoveryCooldown),
		MetricsPort:        config.GetEnvInt("MONITOR_METRICS_PORT", DefaultMetricsPort),
		MetricsHistorySize: config.GetEnvInt("MONITOR_METRICS_HISTORY", DefaultMetricsHistorySize),
		BaselineWindow:     config.GetEnvInt("MONITOR_BASELINE_WINDOW", DefaultBaselineWindow),
		SlackEnabled:       config.GetEnvBool("SLACK_NOTIFICATIONS_ENABLED", false),
		SlackWebhookURL:    config.GetEnvString("SLACK_WEBHOOK_URL", ""),
		SlackTimeout:       config.GetEnvDuration("SLACK_TIMEOUT", DefaultSlackTimeout),
	}

	// A sub-second cycle hammers the probes; beyond an hour the monitor is
	// effectively blind between runs.
	if err := config.ValidateDurationRange(cfg.HealthInterval, time.Second, time.Hour); err != nil {
		slog.Warn("invalid MONITOR_HEALTH_INTERVAL, using default",
			slog.String("value", cfg.HealthInterval.String()),
			slog.String("default", DefaultHealthInterval.String()))
		cfg.HealthInterval = DefaultHealthInterval
	}
	if err := config.ValidatePositiveDuration(cfg.MetricsInterval); err != nil {
		slog.Warn("invalid MONITOR_METRICS_INTERVAL, using default",
			slog.String("value", cfg.MetricsInterval.String()),
			slog.String("default", DefaultMetricsInterval.String()))
		cfg.MetricsInterval = DefaultMetricsInterval
	}
	if err := config.ValidateNonNegativeDuration(cfg.RecoveryCooldown); err != nil {
		slog.Warn("invalid MONITOR_RECOVERY_COOLDOWN, using default",
			slog.String("value", cfg.RecoveryCooldown.String()),
			slog.String("default", DefaultRecoveryCooldown.String()))
		cfg.RecoveryCooldown = DefaultRecoveryCooldown
	}
	if cfg.MetricsPort <= 0 || cfg.MetricsPort > 65535 {
		slog.Warn("invalid MONITOR_METRICS_PORT, using default",
			slog.Int("value", cfg.MetricsPort),
			slog.Int("default", DefaultMetricsPort))
		cfg.MetricsPort = DefaultMetricsPort
	}
	if cfg.MetricsHistorySize <= 0 {
		slog.Warn("invalid MONITOR_METRICS_HISTORY, using default",
			slog.Int("value", cfg.MetricsHistorySize),
			slog.Int("default", DefaultMetricsHistorySize))
		cfg.MetricsHistorySize = DefaultMetricsHistorySize
	}
	if cfg.BaselineWindow <= 0 {
		slog.Warn("invalid MONITOR_BASELINE_WINDOW, using default",
			slog.Int("value", cfg.BaselineWindow),
			slog.Int("default", DefaultBaselineWindow))
		cfg.BaselineWindow = DefaultBaselineWindow
	}
	if cfg.SlackEnabled && cfg.SlackWebhookURL == "" {
		slog.Warn("SLACK_NOTIFICATIONS_ENABLED set without SLACK_WEBHOOK_URL, falling back to log notifier")
		cfg.SlackEnabled = false
	}

	return cfg
}

// Package logging provides structured logging utilities.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON and text output formats (LOG_FORMAT)
//   - Per-subsystem component tagging
//   - Configurable log levels (LOG_LEVEL)
//
// Example usage:
//
//	import "arbiguard/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("monitor started", slog.String("version", "1.0"))
//	}
//
//	func runCycle(ctx context.Context, logger *slog.Logger) {
//	    log := logging.WithComponent(logger, "health")
//	    log.Info("running health checks")
//	}
package logging

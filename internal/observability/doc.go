// Package observability provides the shared observability infrastructure
// for the monitor and its collaborators.
//
// Subpackages:
//   - logging: structured logging utilities with slog
//
// Metric collection and export live in internal/monitoring, which owns the
// snapshot model the Prometheus endpoint serves.
//
// Example usage:
//
//	import "arbiguard/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("monitor started")
//	}
package observability

package notifier

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log instead of an
// external transport. It is the default delivery path when no webhook is
// configured, so alerts are never silently lost.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger means slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// level maps a notification severity to a slog level. A clear event is
// always informational regardless of the alert's severity.
func (l *LogNotifier) level(n Notification) slog.Level {
	if n.Event == EventClear {
		return slog.LevelInfo
	}
	switch n.Severity {
	case SeverityCritical, SeverityError:
		return slog.LevelError
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Notify logs the notification at a level derived from its severity.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	attrs := []any{
		slog.String("notification_id", n.ID),
		slog.String("alert", n.Alert),
		slog.String("severity", string(n.Severity)),
		slog.String("event", string(n.Event)),
		slog.String("message", n.Message),
	}
	for k, v := range n.Metadata {
		attrs = append(attrs, slog.String("meta_"+k, v))
	}

	l.logger.Log(ctx, l.level(n), "alert notification", attrs...)
	return nil
}

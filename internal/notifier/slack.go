package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// SlackConfig contains configuration for Slack webhook notifications.
type SlackConfig struct {
	// Enabled indicates whether Slack notifications are enabled
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	// Timeout is the HTTP request timeout for Slack API calls
	Timeout time.Duration
}

// Validate checks that the webhook URL is a well-formed HTTPS Slack URL.
// The URL embeds an authentication token, so a malformed or non-HTTPS value
// is rejected outright rather than leaked to some arbitrary endpoint.
func (c SlackConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL is required")
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil {
		return fmt.Errorf("slack webhook URL is not a valid URL")
	}
	if u.Scheme != "https" {
		return fmt.Errorf("slack webhook URL must use https, got %q", u.Scheme)
	}
	if u.Host != "hooks.slack.com" {
		return fmt.Errorf("slack webhook URL must point at hooks.slack.com, got %q", u.Host)
	}
	return nil
}

// Slack delivers alert notifications to a Slack channel via Incoming Webhook.
//
// The webhook transport sits behind its own circuit breaker so that a Slack
// outage cannot pile up blocked notification attempts, and behind a
// 1 req/s rate limiter (Slack Webhook limit: 1 message per second).
type Slack struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	breaker     *gobreaker.CircuitBreaker

	// retryBaseDelay is the backoff unit between retry attempts.
	retryBaseDelay time.Duration
}

// NewSlack creates a Slack notifier with the specified configuration.
//
// Parameters:
//   - config: Slack configuration including webhook URL and timeout
//
// Returns:
//   - *Slack: Configured notifier instance
//   - error: Non-nil if the configuration is invalid
func NewSlack(config SlackConfig) (*Slack, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "slack-webhook",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &Slack{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter:    rate.NewLimiter(rate.Limit(1.0), 1), // 1 req/s, burst of 1
		breaker:        gobreaker.NewCircuitBreaker(settings),
		retryBaseDelay: 5 * time.Second,
	}, nil
}

// slackWebhookPayload represents the JSON payload sent to Slack webhook using Block Kit.
type slackWebhookPayload struct {
	Text   string       `json:"text"`   // Fallback text (required)
	Blocks []slackBlock `json:"blocks"` // Rich formatting blocks
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string            `json:"type"`
	Text     *slackTextObject  `json:"text,omitempty"`
	Elements []slackTextObject `json:"elements,omitempty"`
}

// slackTextObject represents a text object in Slack Block Kit.
type slackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

const (
	// Slack Block Kit limits
	maxSectionTextLength = 3000
	maxContextTextLength = 2000
	maxFallbackLength    = 150

	slackTruncationSuffix = "..."
)

// severityEmoji maps a severity to the emoji prefixed to the message.
func severityEmoji(s Severity) string {
	switch s {
	case SeverityCritical:
		return ":rotating_light:"
	case SeverityError:
		return ":red_circle:"
	case SeverityWarning:
		return ":warning:"
	default:
		return ":information_source:"
	}
}

// buildBlockKitPayload creates a Slack webhook payload from a notification.
//
// The payload includes:
//   - Text: Fallback text for push notifications (event + alert name)
//   - Section Block: Severity emoji, alert name, and rendered message
//   - Context Block: Metadata key/value pairs + timestamp
func (s *Slack) buildBlockKitPayload(n Notification) slackWebhookPayload {
	verb := "FIRING"
	if n.Event == EventClear {
		verb = "RESOLVED"
	}

	fallbackText := fmt.Sprintf("[%s] %s", verb, n.Alert)
	if len(fallbackText) > maxFallbackLength {
		fallbackText = fallbackText[:maxFallbackLength-len(slackTruncationSuffix)] + slackTruncationSuffix
	}

	sectionText := fmt.Sprintf("%s *[%s] %s* (%s)\n\n%s",
		severityEmoji(n.Severity), verb, n.Alert, n.Severity, n.Message)
	sectionText = truncate(sectionText, maxSectionTextLength, slackTruncationSuffix)

	parts := make([]string, 0, len(n.Metadata)+1)
	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, n.Metadata[k]))
	}
	parts = append(parts, n.Timestamp.Format(time.RFC3339))
	contextText := truncate(strings.Join(parts, " • "), maxContextTextLength, slackTruncationSuffix)

	sectionBlock := slackBlock{
		Type: "section",
		Text: &slackTextObject{
			Type: "mrkdwn",
			Text: sectionText,
		},
	}
	contextBlock := slackBlock{
		Type: "context",
		Elements: []slackTextObject{
			{
				Type: "mrkdwn",
				Text: contextText,
			},
		},
	}

	return slackWebhookPayload{
		Text:   fallbackText,
		Blocks: []slackBlock{sectionBlock, contextBlock},
	}
}

// sendWebhookRequest sends one Slack webhook request.
//
// Error messages never contain the webhook URL: the URL embeds the
// authentication token.
//
// Error types:
//   - 429: Rate limit error (retryable, contains retry_after duration)
//   - 4xx (non-429): Client error (non-retryable)
//   - 5xx: Server error (retryable)
//   - Network error: Connection/timeout error (retryable)
func (s *Slack) sendWebhookRequest(ctx context.Context, n Notification) error {
	payload := s.buildBlockKitPayload(n)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request for slack webhook")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute slack webhook request: %w", sanitizeURLError(err, s.config.WebhookURL))
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	// Success (Slack returns "ok" as plain text on success)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := extractRetryAfter(resp, body)
		return &RateLimitError{
			Message:    "Slack rate limit exceeded",
			RetryAfter: retryAfter,
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Slack API client error: %s", string(body)),
		}
	}

	if resp.StatusCode >= 500 {
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Slack API server error: %s", string(body)),
		}
	}

	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

// sanitizeURLError strips the webhook URL (which embeds the auth token)
// out of a transport error message.
func sanitizeURLError(err error, webhookURL string) error {
	if !strings.Contains(err.Error(), webhookURL) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), webhookURL, "<slack webhook>"))
}

// sendWithRetry sends a Slack webhook request with retry logic.
//
// Retry strategy:
//   - Max attempts: 2
//   - Base delay: 5 seconds
//   - 429 errors: Use retry_after from Slack response (or Retry-After header)
//   - Server errors (5xx): Exponential backoff (5s, 10s)
//   - Client errors (4xx): No retry, fail immediately
func (s *Slack) sendWithRetry(ctx context.Context, n Notification) error {
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.sendWebhookRequest(ctx, n)
		})

		if err == nil {
			slog.Info("Slack notification successful",
				slog.String("notification_id", n.ID),
				slog.String("alert", n.Alert),
				slog.String("event", string(n.Event)),
				slog.Int("attempt", attempt))
			return nil
		}

		lastErr = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			slog.Warn("Slack webhook circuit open, dropping notification",
				slog.String("notification_id", n.ID),
				slog.String("alert", n.Alert),
				slog.Any("error", err))
			return fmt.Errorf("slack webhook circuit open: %w", err)
		}

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn("Slack rate limit hit, backing off",
				slog.String("notification_id", n.ID),
				slog.String("alert", n.Alert),
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))

			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			slog.Error("Slack notification failed with non-retryable error",
				slog.String("notification_id", n.ID),
				slog.String("alert", n.Alert),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < maxAttempts {
			delay := s.retryBaseDelay * time.Duration(attempt)
			slog.Warn("Slack webhook request failed, retrying",
				slog.String("notification_id", n.ID),
				slog.String("alert", n.Alert),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	slog.Error("Slack notification failed after all retries",
		slog.String("notification_id", n.ID),
		slog.String("alert", n.Alert),
		slog.Any("error", lastErr),
		slog.Int("max_attempts", maxAttempts))

	return fmt.Errorf("slack notification failed after %d attempts: %w", maxAttempts, lastErr)
}

// Notify delivers one alert notification to Slack.
// This method implements the Notifier interface.
//
// It performs the following steps:
//  1. Apply rate limiting (1 req/s, burst of 1)
//  2. Send the webhook request through the transport circuit breaker,
//     with retry logic for transient failures
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - n: The notification to deliver
//
// Returns:
//   - error: Non-nil if notification failed after all retry attempts
func (s *Slack) Notify(ctx context.Context, n Notification) error {
	slog.Info("Starting Slack notification",
		slog.String("notification_id", n.ID),
		slog.String("alert", n.Alert),
		slog.String("severity", string(n.Severity)),
		slog.String("event", string(n.Event)))

	if err := s.rateLimiter.Wait(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("notification_id", n.ID),
			slog.String("alert", n.Alert),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return s.sendWithRetry(ctx, n)
}

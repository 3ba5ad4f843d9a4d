package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

func testNotification() Notification {
	return Notification{
		ID:       "test-id-1",
		Alert:    "high_cpu_usage",
		Severity: SeverityWarning,
		Event:    EventFire,
		Message:  "CPU usage at 95.0% exceeds threshold 85%",
		Metadata: map[string]string{"metric": "cpu_usage_percent", "value": "95.0"},
		Timestamp: time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC),
	}
}

// testSlack builds a Slack notifier pointed at a test server, bypassing the
// hooks.slack.com host validation that NewSlack enforces.
func testSlack(serverURL string) *Slack {
	return &Slack{
		config: SlackConfig{
			Enabled:    true,
			WebhookURL: serverURL,
			Timeout:    2 * time.Second,
		},
		httpClient:     &http.Client{Timeout: 2 * time.Second},
		rateLimiter:    rate.NewLimiter(rate.Inf, 1),
		breaker:        gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "slack-webhook-test"}),
		retryBaseDelay: time.Millisecond,
	}
}

func TestSlackConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid webhook URL", "https://hooks.slack.com/services/T00/B00/token", false},
		{"empty URL", "", true},
		{"plain http", "http://hooks.slack.com/services/T00/B00/token", true},
		{"wrong host", "https://evil.example.com/services/T00", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := SlackConfig{WebhookURL: tc.url}.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSlack_buildBlockKitPayload(t *testing.T) {
	s := testSlack("https://hooks.slack.com/services/test")

	t.Run("fire event", func(t *testing.T) {
		payload := s.buildBlockKitPayload(testNotification())

		if len(payload.Blocks) != 2 {
			t.Fatalf("expected 2 blocks, got %d", len(payload.Blocks))
		}
		if !strings.HasPrefix(payload.Text, "[FIRING] high_cpu_usage") {
			t.Errorf("unexpected fallback text %q", payload.Text)
		}
		section := payload.Blocks[0]
		if section.Type != "section" || section.Text == nil {
			t.Fatalf("first block should be a section with text, got %+v", section)
		}
		if !strings.Contains(section.Text.Text, "high_cpu_usage") ||
			!strings.Contains(section.Text.Text, "CPU usage at 95.0%") {
			t.Errorf("section text missing alert details: %q", section.Text.Text)
		}
		ctxBlock := payload.Blocks[1]
		if ctxBlock.Type != "context" || len(ctxBlock.Elements) != 1 {
			t.Fatalf("second block should be a context block, got %+v", ctxBlock)
		}
		if !strings.Contains(ctxBlock.Elements[0].Text, "metric: cpu_usage_percent") {
			t.Errorf("context text missing metadata: %q", ctxBlock.Elements[0].Text)
		}
	})

	t.Run("clear event", func(t *testing.T) {
		n := testNotification()
		n.Event = EventClear
		payload := s.buildBlockKitPayload(n)
		if !strings.HasPrefix(payload.Text, "[RESOLVED]") {
			t.Errorf("clear event fallback = %q, want RESOLVED prefix", payload.Text)
		}
	})

	t.Run("long message truncated", func(t *testing.T) {
		n := testNotification()
		n.Message = strings.Repeat("x", 5000)
		payload := s.buildBlockKitPayload(n)
		if len(payload.Blocks[0].Text.Text) > maxSectionTextLength {
			t.Errorf("section text length %d exceeds limit %d",
				len(payload.Blocks[0].Text.Text), maxSectionTextLength)
		}
		if !strings.HasSuffix(payload.Blocks[0].Text.Text, slackTruncationSuffix) {
			t.Error("truncated text should end with the truncation suffix")
		}
	})
}

func TestSlack_Notify(t *testing.T) {
	t.Run("success posts Block Kit JSON", func(t *testing.T) {
		var gotBody []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type = %q, want application/json", ct)
			}
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		s := testSlack(server.URL)
		if err := s.Notify(context.Background(), testNotification()); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}

		var payload slackWebhookPayload
		if err := json.Unmarshal(gotBody, &payload); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if len(payload.Blocks) != 2 {
			t.Errorf("posted %d blocks, want 2", len(payload.Blocks))
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid_payload"))
		}))
		defer server.Close()

		s := testSlack(server.URL)
		err := s.Notify(context.Background(), testNotification())
		if err == nil {
			t.Fatal("expected error for 400 response")
		}
		var clientErr *ClientError
		if !errors.As(err, &clientErr) {
			t.Fatalf("error type = %T, want *ClientError", err)
		}
		if got := calls.Load(); got != 1 {
			t.Errorf("server called %d times, want 1 (no retry on 4xx)", got)
		}
	})

	t.Run("server error retried then succeeds", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		s := testSlack(server.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Notify(ctx, testNotification()); err != nil {
			t.Fatalf("Notify() after retry error = %v", err)
		}
		if got := calls.Load(); got != 2 {
			t.Errorf("server called %d times, want 2", got)
		}
	})

	t.Run("error does not leak webhook URL", func(t *testing.T) {
		s := testSlack("http://127.0.0.1:1/secret-token-path")
		err := s.Notify(context.Background(), testNotification())
		if err == nil {
			t.Fatal("expected connection error")
		}
		if strings.Contains(err.Error(), "secret-token-path") {
			t.Errorf("error message leaks webhook URL: %v", err)
		}
	})
}

func TestExtractRetryAfter(t *testing.T) {
	t.Run("from JSON body", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		got := extractRetryAfter(resp, []byte(`{"retry_after": 2.5}`))
		if got != 2500*time.Millisecond {
			t.Errorf("retry after = %v, want 2.5s", got)
		}
	})
	t.Run("from header", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"Retry-After": []string{"7"}}}
		got := extractRetryAfter(resp, nil)
		if got != 7*time.Second {
			t.Errorf("retry after = %v, want 7s", got)
		}
	})
	t.Run("default", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		got := extractRetryAfter(resp, []byte("not json"))
		if got != 5*time.Second {
			t.Errorf("retry after = %v, want 5s default", got)
		}
	})
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arbiguard/internal/daemon"
	"arbiguard/internal/monitoring"
	"arbiguard/internal/resilience/circuitbreaker"
	"arbiguard/internal/resilience/health"
	"arbiguard/internal/resilience/recovery"
)

// statusServer exposes Prometheus metrics and read-only JSON status
// endpoints. Status handlers never fail: they serialize whatever state
// the components currently hold.
type statusServer struct {
	server       *http.Server
	ready        atomic.Bool
	registry     *circuitbreaker.Registry
	engine       *health.Engine
	orchestrator *recovery.Orchestrator
	alerts       *monitoring.AlertManager
}

// BreakerStatusResponse is the JSON shape of GET /status/breakers.
type BreakerStatusResponse struct {
	Breakers  []BreakerStatus `json:"breakers"`
	OpenCount int             `json:"open_count"`
	Timestamp time.Time       `json:"timestamp"`
}

// BreakerStatus describes one circuit breaker.
type BreakerStatus struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	WindowCalls     int       `json:"window_calls"`
	FailureRate     float64   `json:"failure_rate"`
	TimeInState     string    `json:"time_in_state"`
	LastFailureTime time.Time `json:"last_failure_time,omitzero"`
}

// HealthStatusResponse is the JSON shape of GET /status/health.
type HealthStatusResponse struct {
	Overall   string              `json:"overall"`
	Checks    []CheckStatus       `json:"checks"`
	Recovery  map[string]Recovery `json:"recovery,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// CheckStatus describes the latest result of one health check.
type CheckStatus struct {
	Name                string    `json:"name"`
	Status              string    `json:"status"`
	Message             string    `json:"message,omitempty"`
	Error               string    `json:"error,omitempty"`
	Critical            bool      `json:"critical"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ResponseTimeMS      int64     `json:"response_time_ms"`
	CheckedAt           time.Time `json:"checked_at,omitzero"`
}

// Recovery describes the execution record of one recovery action.
type Recovery struct {
	SuccessCount  int       `json:"success_count"`
	FailureCount  int       `json:"failure_count"`
	LastExecution time.Time `json:"last_execution,omitzero"`
}

// AlertStatusResponse is the JSON shape of GET /status/alerts.
type AlertStatusResponse struct {
	Alerts    []monitoring.AlertStatus `json:"alerts"`
	Timestamp time.Time                `json:"timestamp"`
}

func newStatusServer(
	cfg daemon.Config,
	collector *monitoring.Collector,
	registry *circuitbreaker.Registry,
	engine *health.Engine,
	orchestrator *recovery.Orchestrator,
	alerts *monitoring.AlertManager,
) *statusServer {
	s := &statusServer{
		registry:     registry,
		engine:       engine,
		orchestrator: orchestrator,
		alerts:       alerts,
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		monitoring.NewSnapshotCollector(collector.Snapshot),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.livenessHandler)
	mux.HandleFunc("/ready", s.readinessHandler)
	mux.HandleFunc("/status/breakers", s.breakersHandler)
	mux.HandleFunc("/status/health", s.healthHandler)
	mux.HandleFunc("/status/alerts", s.alertsHandler)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// start serves in the background and shuts down gracefully when ctx is
// cancelled.
func (s *statusServer) start(ctx context.Context, logger *slog.Logger) {
	go func() {
		logger.Info("status server starting", slog.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server failed", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown failed", slog.Any("error", err))
			return
		}
		logger.Info("status server stopped")
	}()
}

func (s *statusServer) setReady(ready bool) {
	s.ready.Store(ready)
}

func (s *statusServer) livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *statusServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"starting"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (s *statusServer) breakersHandler(w http.ResponseWriter, r *http.Request) {
	snapshots := s.registry.AllSnapshots()

	resp := BreakerStatusResponse{
		Breakers:  make([]BreakerStatus, 0, len(snapshots)),
		Timestamp: time.Now(),
	}
	for _, snap := range snapshots {
		if snap.State == circuitbreaker.StateOpen {
			resp.OpenCount++
		}
		resp.Breakers = append(resp.Breakers, BreakerStatus{
			Name:            snap.Name,
			State:           snap.State.String(),
			FailureCount:    snap.FailureCount,
			WindowCalls:     snap.Stats.TotalCalls,
			FailureRate:     snap.Stats.FailureRate,
			TimeInState:     snap.TimeInState.String(),
			LastFailureTime: snap.LastFailureTime,
		})
	}
	sort.Slice(resp.Breakers, func(i, j int) bool {
		return resp.Breakers[i].Name < resp.Breakers[j].Name
	})

	writeJSON(w, resp)
}

func (s *statusServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	results := s.engine.Results()
	summary := s.engine.Summary()
	history := s.orchestrator.History()

	resp := HealthStatusResponse{
		Overall:   summary.Overall.String(),
		Checks:    make([]CheckStatus, 0, len(results)),
		Timestamp: time.Now(),
	}
	for _, res := range results {
		status := CheckStatus{
			Name:                res.Name,
			Status:              res.Status.String(),
			Message:             res.Message,
			Critical:            res.Critical,
			ConsecutiveFailures: res.ConsecutiveFailures,
			ResponseTimeMS:      res.ResponseTime.Milliseconds(),
			CheckedAt:           res.CheckedAt,
		}
		if res.Err != nil {
			status.Error = res.Err.Error()
		}
		resp.Checks = append(resp.Checks, status)
	}
	if len(history) > 0 {
		resp.Recovery = make(map[string]Recovery, len(history))
		for name, stats := range history {
			resp.Recovery[name] = Recovery{
				SuccessCount:  stats.SuccessCount,
				FailureCount:  stats.FailureCount,
				LastExecution: stats.LastExecution,
			}
		}
	}

	writeJSON(w, resp)
}

func (s *statusServer) alertsHandler(w http.ResponseWriter, r *http.Request) {
	status := s.alerts.Status()

	resp := AlertStatusResponse{
		Alerts:    make([]monitoring.AlertStatus, 0, len(status)),
		Timestamp: time.Now(),
	}
	for _, a := range status {
		resp.Alerts = append(resp.Alerts, a)
	}
	sort.Slice(resp.Alerts, func(i, j int) bool {
		return resp.Alerts[i].Name < resp.Alerts[j].Name
	})

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode status response", slog.Any("error", err))
	}
}

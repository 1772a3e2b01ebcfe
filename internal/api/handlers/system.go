// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package handlers

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
)

// HealthChecker reports the health of one component.
type HealthChecker func(ctx context.Context) *HealthStatus

// HealthStatus is the outcome of a single component check.
type HealthStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Latency   int64  `json:"latency_ms,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

// SystemHandler serves health, readiness, version and runtime stats.
type SystemHandler struct {
	BaseHandler
	version   string
	commit    string
	buildTime string
	startedAt time.Time

	mu     sync.RWMutex
	checks map[string]HealthChecker
}

// NewSystemHandler creates a system handler carrying build information.
func NewSystemHandler(version, commit, buildTime string, log *logger.Logger) *SystemHandler {
	return &SystemHandler{
		BaseHandler: NewBaseHandler(log),
		version:     version,
		commit:      commit,
		buildTime:   buildTime,
		startedAt:   time.Now(),
		checks:      make(map[string]HealthChecker),
	}
}

// RegisterHealthChecker adds a named component check.
func (h *SystemHandler) RegisterHealthChecker(name string, check HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// runChecks executes every registered checker in parallel under one
// timeout and collects the results by component name.
func (h *SystemHandler) runChecks(ctx context.Context, timeout time.Duration) map[string]*HealthStatus {
	h.mu.RLock()
	checks := make(map[string]HealthChecker, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := make(map[string]*HealthStatus, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check HealthChecker) {
			defer wg.Done()

			start := time.Now()
			status := check(ctx)
			if status == nil {
				status = &HealthStatus{Status: "unknown"}
			}
			status.Latency = time.Since(start).Milliseconds()
			status.CheckedAt = time.Now().UTC().Format(time.RFC3339)

			mu.Lock()
			out[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	return out
}

// HealthResponse is the overall health check response.
type HealthResponse struct {
	Status     string                   `json:"status"`
	Version    string                   `json:"version"`
	Uptime     int64                    `json:"uptime_seconds"`
	Components map[string]*HealthStatus `json:"components,omitempty"`
}

// Health handles GET /health. A single unhealthy component makes the
// whole response unhealthy with a 503; degraded components keep a 200.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := &HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
		Components: h.runChecks(r.Context(), 5*time.Second),
	}

	for _, status := range health.Components {
		switch status.Status {
		case "unhealthy":
			health.Status = "unhealthy"
		case "degraded":
			if health.Status != "unhealthy" {
				health.Status = "degraded"
			}
		}
	}

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	h.JSON(w, code, health)
}

// Liveness handles GET /healthz.
func (h *SystemHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	h.OK(w, map[string]string{"status": "alive"})
}

// ReadinessResponse is the readiness check response.
type ReadinessResponse struct {
	Status     string                   `json:"status"`
	Components map[string]*HealthStatus `json:"components,omitempty"`
}

// Readiness handles GET /ready. Any unhealthy component means the
// server must not receive traffic yet.
func (h *SystemHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := &ReadinessResponse{
		Status:     "ready",
		Components: h.runChecks(r.Context(), 3*time.Second),
	}

	for name, status := range resp.Components {
		if status.Status == "unhealthy" {
			resp.Status = "not_ready"
			h.logger.Warn("readiness check failed", "component", name, "message", status.Message)
		}
	}

	if resp.Status != "ready" {
		h.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.OK(w, resp)
}

// VersionResponse carries build information.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// Version handles GET /api/v1/system/version.
func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	h.OK(w, VersionResponse{
		Version:   h.version,
		Commit:    h.commit,
		BuildTime: h.buildTime,
		GoVersion: runtime.Version(),
	})
}

// SystemInfoResponse extends the version info with process lifetime.
type SystemInfoResponse struct {
	Version    string `json:"version"`
	Commit     string `json:"commit,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
	GoVersion  string `json:"go_version"`
	StartedAt  string `json:"started_at"`
	Uptime     int64  `json:"uptime_seconds"`
	Goroutines int    `json:"goroutines"`
}

// Info handles GET /api/v1/system/info.
func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	h.OK(w, SystemInfoResponse{
		Version:    h.version,
		Commit:     h.commit,
		BuildTime:  h.buildTime,
		GoVersion:  runtime.Version(),
		StartedAt:  h.startedAt.UTC().Format(time.RFC3339),
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
		Goroutines: runtime.NumGoroutine(),
	})
}

// MetricsResponse is the runtime snapshot served to scrapers.
type MetricsResponse struct {
	Uptime     int64  `json:"uptime_seconds"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	GCCycles   uint32 `json:"gc_cycles"`
}

// Metrics handles GET /metrics.
func (h *SystemHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h.OK(w, MetricsResponse{
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		GCCycles:   mem.NumGC,
	})
}

// pingChecker wraps a ping-style function into a health checker.
func pingChecker(ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) *HealthStatus {
		start := time.Now()
		err := ping(ctx)
		status := &HealthStatus{
			Status:    "healthy",
			Latency:   time.Since(start).Milliseconds(),
			CheckedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err != nil {
			status.Status = "unhealthy"
			status.Message = err.Error()
		}
		return status
	}
}

// DatabaseHealthChecker checks a database connection via its ping.
func DatabaseHealthChecker(pingFn func(ctx context.Context) error) HealthChecker {
	return pingChecker(pingFn)
}

// NATSHealthChecker checks a NATS connection. healthFn should do a real
// round trip, e.g. a flush with timeout.
func NATSHealthChecker(healthFn func(ctx context.Context) error) HealthChecker {
	return pingChecker(healthFn)
}

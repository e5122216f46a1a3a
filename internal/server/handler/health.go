package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a backend whose reachability is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FailureReporter exposes suppressed adapter failure counts.
type FailureReporter interface {
	AdapterFailures() map[string]int64
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	backends map[string]Pinger
	failures FailureReporter
	started  time.Time
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler. backends may be empty; nil
// entries are skipped.
func NewHealthHandler(backends map[string]Pinger, failures FailureReporter, logger *slog.Logger) *HealthHandler {
	live := make(map[string]Pinger, len(backends))
	for name, p := range backends {
		if p != nil {
			live[name] = p
		}
	}
	return &HealthHandler{
		backends: live,
		failures: failures,
		started:  time.Now().UTC(),
		logger:   logHandler(logger, "health"),
	}
}

// HealthCheck reports process liveness, backend reachability and adapter
// failure counters. Any unreachable backend turns the answer into a 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	components := make(map[string]string, len(h.backends))
	for name, p := range h.backends {
		if err := p.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "backend unhealthy",
				slog.String("backend", name),
				slog.String("error", err.Error()),
			)
			components[name] = "down"
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	body := map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"components":     components,
	}
	if h.failures != nil {
		body["adapter_failures"] = h.failures.AdapterFailures()
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

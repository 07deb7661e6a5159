package handler

import (
	"context"
	"net/http"
	"time"
)

// ReadinessChecker reports whether a dependency can serve requests
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// ReadinessFunc adapts a plain function to ReadinessChecker
type ReadinessFunc func(ctx context.Context) error

// Ready calls f
func (f ReadinessFunc) Ready(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks map[string]ReadinessChecker
}

// NewHealthHandler creates a new health handler. checks maps a dependency
// name (ledger, redis) to its probe.
func NewHealthHandler(checks map[string]ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		checks: checks,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
	Uptime  string            `json:"uptime,omitempty"`
}

// Version is reported by the health endpoints
var Version = "dev"

var startTime = time.Now()

// GetHealth handles GET /health
// Basic health check - returns 200 OK if service is running
func GetHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(startTime).String(),
		Checks:  map[string]string{},
	}

	respondJSON(w, response, http.StatusOK)
}

// GetLiveness handles GET /health/live
func GetLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "alive"}, http.StatusOK)
}

// GetReadiness handles GET /health/ready
// Checks every dependency; any failure makes the service not ready
func (h *HealthHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	status := "ready"
	for name, check := range h.checks {
		if err := check.Ready(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = "not_ready"
			continue
		}
		checks[name] = "healthy"
	}

	httpStatus := http.StatusOK
	if status != "ready" {
		httpStatus = http.StatusServiceUnavailable
	}

	respondJSON(w, HealthResponse{
		Status:  status,
		Version: Version,
		Uptime:  time.Since(startTime).String(),
		Checks:  checks,
	}, httpStatus)
}

// Package health serves the gateway's liveness and readiness endpoints.
package health

import (
	"encoding/json"
	"net/http"
)

// UpstreamChecker is the interface the health handler needs from the
// upstream monitor. This avoids a direct dependency on internal/upstream.
type UpstreamChecker interface {
	HealthyUpstreams() []string
	AllUpstreamNames() []string
}

// CounterModeFunc reports the active rate-limit counter backend,
// "primary" or "fallback".
type CounterModeFunc func() string

// Handler provides HTTP health check endpoints.
type Handler struct {
	checker       UpstreamChecker
	counterMode   CounterModeFunc
	version       string
	readinessMode string // "any_healthy", "all_healthy", "always"
}

// NewHandler creates a health check handler. checker and counterMode may
// be nil, in which case their sections report empty/unknown.
func NewHandler(checker UpstreamChecker, counterMode CounterModeFunc, version, readinessMode string) *Handler {
	return &Handler{
		checker:       checker,
		counterMode:   counterMode,
		version:       version,
		readinessMode: readinessMode,
	}
}

// LivenessResponse is the JSON response for the liveness endpoint.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status           string `json:"status"`
	HealthyUpstreams int    `json:"healthy_upstreams"`
	TotalUpstreams   int    `json:"total_upstreams"`
	CounterMode      string `json:"counter_mode,omitempty"`
}

// Liveness always answers 200: the process is up and serving.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(LivenessResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Readiness answers 200 when the gateway can usefully serve traffic
// under the configured readiness mode. A degraded counter backend is
// reported but does not fail readiness: the memory fallback still
// enforces limits.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	var healthy, all []string
	if h.checker != nil {
		healthy = h.checker.HealthyUpstreams()
		all = h.checker.AllUpstreamNames()
	}

	healthyCount := len(healthy)
	totalCount := len(all)

	var isReady bool
	switch h.readinessMode {
	case "always":
		isReady = true
	case "all_healthy":
		isReady = healthyCount == totalCount && totalCount > 0
	default: // any_healthy
		isReady = healthyCount > 0 || totalCount == 0
	}

	resp := ReadinessResponse{
		HealthyUpstreams: healthyCount,
		TotalUpstreams:   totalCount,
	}
	if h.counterMode != nil {
		resp.CounterMode = h.counterMode()
	}

	w.Header().Set("Content-Type", "application/json")
	if isReady {
		resp.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		resp.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

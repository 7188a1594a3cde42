package handlers

import (
	"net/http"

	"github.com/coral-p2025/coral/server/provider"
)

// HealthChecker reports backend health.
type HealthChecker interface {
	Health() map[string]provider.HealthStatus
	Healthy() bool
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string                           `json:"status"`
	Backends map[string]provider.HealthStatus `json:"backends,omitempty"`
}

// HealthHandler serves GET /health. It answers 503 when every chat backend
// has an open circuit.
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a health handler. A nil checker always reports
// ok.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{Status: "ok", Backends: h.checker.Health()}
	status := http.StatusOK
	if !h.checker.Healthy() {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

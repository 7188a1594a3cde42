package provider

import (
	"time"

	"github.com/sony/gobreaker"
)

// HealthStatus represents the observed health of a backend
type HealthStatus struct {
	Healthy          bool          `json:"healthy"`
	BreakerState     string        `json:"breaker_state"`
	LastRequest      time.Time     `json:"last_request,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
	ConsecutiveFails int           `json:"consecutive_failures"`
	Latency          time.Duration `json:"latency_ns"`
	ErrorCount       int64         `json:"error_count"`
	RequestCount     int64         `json:"request_count"`
}

func (b *backend) record(err error, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.status.LastRequest = time.Now()
	b.status.RequestCount++
	b.status.Latency = latency
	if err != nil && !isSuccessful(err) {
		b.status.ErrorCount++
		b.status.ConsecutiveFails++
		b.status.LastError = err.Error()
		return
	}
	b.status.ConsecutiveFails = 0
	b.status.LastError = ""
}

// Health returns the status of every backend keyed by name. A backend is
// healthy unless its breaker is open.
func (m *Manager) Health() map[string]HealthStatus {
	out := make(map[string]HealthStatus, len(m.backends))
	for _, b := range m.backends {
		b.mu.Lock()
		status := b.status
		b.mu.Unlock()

		state := b.breaker.State()
		status.BreakerState = state.String()
		status.Healthy = state != gobreaker.StateOpen
		out[b.name] = status
	}
	return out
}

// Healthy reports whether at least one backend can take requests.
func (m *Manager) Healthy() bool {
	for _, status := range m.Health() {
		if status.Healthy {
			return true
		}
	}
	return false
}

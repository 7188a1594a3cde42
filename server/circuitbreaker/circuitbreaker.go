// Package circuitbreaker guards calls to a chat backend with a
// sony/gobreaker breaker and exports its state to Prometheus.
package circuitbreaker

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/server/metrics"
)

// Config holds configuration for the circuit breaker
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32

	// Timeout is how long the circuit stays open before letting a probe through
	Timeout time.Duration

	// MaxRequests is the number of probes allowed while half-open
	MaxRequests uint32

	// Interval clears the failure counts while closed (0 never clears)
	Interval time.Duration

	// IsSuccessful decides whether an error counts against the backend.
	// Nil counts every error.
	IsSuccessful func(err error) bool
}

// FromConfig converts the circuit_breaker configuration section.
func FromConfig(cfg config.CircuitBreakerConfig) Config {
	return Config{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          cfg.Timeout,
		MaxRequests:      cfg.MaxRequests,
		Interval:         cfg.Interval,
	}
}

// Breaker implements the circuit breaker pattern for one backend.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewBreaker creates a closed breaker. m may be nil.
func NewBreaker(name string, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	b := &Breaker{
		name:    name,
		logger:  logger,
		metrics: m,
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: b.onStateChange,
		IsSuccessful:  cfg.IsSuccessful,
	})

	if m != nil {
		m.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	}
	return b
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	if b.metrics != nil {
		b.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == gobreaker.StateOpen {
			b.metrics.BreakerTrips.WithLabelValues(name).Inc()
		}
	}

	fields := []zap.Field{
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	}
	if to == gobreaker.StateOpen {
		b.logger.Warn("circuit breaker tripped", fields...)
		return
	}
	b.logger.Info("circuit breaker state changed", fields...)
}

// Execute runs f unless the circuit is open. A rejected call returns an
// error wrapping ErrCircuitOpen.
func (b *Breaker) Execute(f func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, f()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}
	return err
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the request counts of the current generation.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

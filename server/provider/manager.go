// Package provider routes chat requests across the configured chat
// backends, guarding each with a circuit breaker.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/server/circuitbreaker"
	"github.com/coral-p2025/coral/server/metrics"
)

// Backend is a named chat client.
type Backend struct {
	Name   string
	Client chat.Client
}

type backend struct {
	name    string
	client  chat.Client
	breaker *circuitbreaker.Breaker

	mu     sync.Mutex
	status HealthStatus
}

// Manager implements chat.Client over backends in preference order.
//
// A request goes to the first backend. It moves on to the next one only
// when the current backend's breaker is open, so a single failure is
// returned to the caller while repeated failures shift traffic. Errors the
// chat service reports about the request itself (4xx) are returned as is
// and do not count against the backend.
type Manager struct {
	backends []*backend
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

var _ chat.Client = (*Manager)(nil)

// NewManager creates a manager over backends, tried in the given order.
func NewManager(backends []Backend, cbConfig circuitbreaker.Config, logger *zap.Logger, m *metrics.Metrics) (*Manager, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	cbConfig.IsSuccessful = isSuccessful

	mgr := &Manager{logger: logger, metrics: m}
	for _, b := range backends {
		if b.Client == nil {
			return nil, fmt.Errorf("backend %s has no client", b.Name)
		}
		mgr.backends = append(mgr.backends, &backend{
			name:    b.Name,
			client:  b.Client,
			breaker: circuitbreaker.NewBreaker(b.Name, cbConfig, logger.With(zap.String("backend", b.Name)), m),
			status:  HealthStatus{Healthy: true},
		})
	}
	return mgr, nil
}

// NewManagerFromConfig builds the backends named in cfg.Chat.Preference.
func NewManagerFromConfig(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Manager, error) {
	var backends []Backend
	for _, name := range cfg.Chat.Preference {
		switch name {
		case "toolkit":
			backends = append(backends, Backend{
				Name: name,
				Client: chat.NewToolkitClient(cfg.Chat.BaseURL, cfg.Chat.UserID, cfg.Chat.Timeout,
					chat.WithDeployment(cfg.Chat.Deployment),
					chat.WithLogger(logger.Named("toolkit")),
				),
			})
		case "gollm":
			g := cfg.Chat.Gollm
			if g == nil {
				return nil, fmt.Errorf("gollm backend is not configured")
			}
			client, err := chat.NewGollmClient(g.Provider, g.Model, g.APIKey, logger.Named("gollm"))
			if err != nil {
				return nil, err
			}
			backends = append(backends, Backend{Name: name, Client: client})
		default:
			return nil, fmt.Errorf("unknown chat backend: %s", name)
		}
	}
	return NewManager(backends, circuitbreaker.FromConfig(cfg.CircuitBreaker), logger, m)
}

// isSuccessful counts request-level rejections as successes: the backend
// answered, it just refused this request.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *chat.APIError
	return errors.As(err, &apiErr) && !apiErr.Temporary()
}

// Chat implements chat.Client.
func (m *Manager) Chat(ctx context.Context, req chat.Request) (*chat.Response, error) {
	var lastErr error
	for i, b := range m.backends {
		resp, err := m.execute(ctx, b, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if isSuccessful(err) {
			return nil, err
		}

		last := i == len(m.backends)-1
		if b.breaker.State() == gobreaker.StateOpen && !last {
			m.metrics.BackendFailover.WithLabelValues(b.name).Inc()
			m.logger.Warn("backend unavailable, failing over",
				zap.String("backend", b.name),
				zap.String("next", m.backends[i+1].name),
				zap.Error(err),
			)
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (m *Manager) execute(ctx context.Context, b *backend, req chat.Request) (*chat.Response, error) {
	start := time.Now()

	var resp *chat.Response
	err := b.breaker.Execute(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		resp, err = b.client.Chat(ctx, req)
		return err
	})

	duration := time.Since(start)
	if !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		m.metrics.BackendLatency.WithLabelValues(b.name).Observe(duration.Seconds())
		b.record(err, duration)
	}

	if err != nil {
		counts := b.breaker.Counts()
		m.logger.Debug("backend request failed",
			zap.String("backend", b.name),
			zap.Error(err),
			zap.Duration("duration", duration),
			zap.String("breaker_state", b.breaker.State().String()),
			zap.Uint32("consecutive_failures", counts.ConsecutiveFailures),
		)
	}
	return resp, err
}

// Package metrics holds the Prometheus collectors of the server on a
// private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP surface
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec
	QueueSize       prometheus.Gauge
	QueueRejected   prometheus.Counter

	// Reply pipeline
	RepliesTotal           *prometheus.CounterVec
	ReplyDuration          prometheus.Histogram
	MentionResolveFailures prometheus.Counter

	// Chat backends
	BackendLatency  *prometheus.HistogramVec
	BreakerState    *prometheus.GaugeVec
	BreakerTrips    *prometheus.CounterVec
	BackendFailover *prometheus.CounterVec

	// Sandbox
	SandboxTransforms *prometheus.CounterVec
	BlobsStored       prometheus.Gauge
	BlobsEvicted      prometheus.Counter

	// Slack
	SlackEvents      *prometheus.CounterVec
	SlackQueueLength prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coral_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coral_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_rate_limit_hits_total",
				Help: "Total number of rate limit hits by client",
			},
			[]string{"client"},
		),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coral_chat_admission_queue_size",
			Help: "Chat requests currently admitted",
		}),
		QueueRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "coral_chat_admission_rejected_total",
			Help: "Chat requests rejected because the admission queue was full",
		}),

		RepliesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_replies_total",
				Help: "Replies produced by outcome (ok, api_error, error)",
			},
			[]string{"outcome"},
		),
		ReplyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coral_reply_duration_seconds",
			Help:    "End to end duration of the reply pipeline",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		MentionResolveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "coral_mention_resolution_failures_total",
			Help: "User mentions left unresolved because the lookup failed",
		}),

		BackendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coral_backend_request_latency_seconds",
				Help:    "Latency of chat backend requests",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"backend"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coral_circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		BreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_circuit_breaker_trips_total",
				Help: "Total number of times the circuit breaker has tripped",
			},
			[]string{"name"},
		),
		BackendFailover: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_backend_failover_total",
				Help: "Requests moved off a backend whose breaker opened",
			},
			[]string{"from"},
		),

		SandboxTransforms: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_sandbox_transforms_total",
				Help: "Sandbox transforms by result (embedded, unchanged)",
			},
			[]string{"result"},
		),
		BlobsStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coral_sandbox_blobs_stored",
			Help: "Sandbox documents currently registered",
		}),
		BlobsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coral_sandbox_blobs_evicted_total",
			Help: "Sandbox documents dropped to stay within the store bound",
		}),

		SlackEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_slack_events_total",
				Help: "Slack events by type and disposition",
			},
			[]string{"type", "disposition"},
		),
		SlackQueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coral_slack_queue_length",
			Help: "Slack events waiting for a worker",
		}),
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m.RequestsTotal.WithLabelValues("/health", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/metrics", "200").Add(0)
	m.RequestDuration.WithLabelValues("/health").Observe(0)
	m.RequestDuration.WithLabelValues("/metrics").Observe(0)
	for _, outcome := range []string{"ok", "api_error", "error"} {
		m.RepliesTotal.WithLabelValues(outcome).Add(0)
	}

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}

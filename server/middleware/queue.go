package middleware

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue/v2"

	"github.com/coral-p2025/coral/errors"
	"github.com/coral-p2025/coral/server/metrics"
)

// queueContextKey is a custom type for queue-specific context keys to avoid collisions
type queueContextKey string

const queuePositionKey queueContextKey = "queue_position"

// QueueMiddleware bounds the number of chat requests in flight. Each
// admitted request holds a slot in a FIFO queue until its handler returns;
// requests arriving while the queue is full get 503.
type QueueMiddleware struct {
	queue      *queue.Queue[chan struct{}]
	maxSize    atomic.Int64
	mu         sync.Mutex
	processing atomic.Int32
	metrics    *metrics.Metrics
	closed     atomic.Bool
}

// NewQueueMiddleware creates an admission queue holding up to maxSize
// requests. m may be nil.
func NewQueueMiddleware(maxSize int64, m *metrics.Metrics) *QueueMiddleware {
	qm := &QueueMiddleware{
		queue:   queue.New[chan struct{}](),
		metrics: m,
	}
	qm.maxSize.Store(maxSize)
	return qm
}

// SetMaxSize updates the maximum number of requests admitted at once.
// Requests already admitted keep their slot.
func (qm *QueueMiddleware) SetMaxSize(size int64) {
	qm.maxSize.Store(size)
}

// GetMaxSize returns the current maximum queue size.
func (qm *QueueMiddleware) GetMaxSize() int64 {
	return qm.maxSize.Load()
}

// GetQueueSize returns the number of admitted requests.
func (qm *QueueMiddleware) GetQueueSize() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.queue.Length()
}

// GetProcessing returns the number of requests currently being processed.
func (qm *QueueMiddleware) GetProcessing() int32 {
	return qm.processing.Load()
}

// QueuePosition returns how many requests were ahead of this one when it
// was admitted.
func QueuePosition(ctx context.Context) (int, bool) {
	pos, ok := ctx.Value(queuePositionKey).(int)
	return pos, ok
}

// Handler admits the request or answers 503 when the queue is full or
// shutting down.
func (qm *QueueMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := GetRequestID(r.Context())

		qm.mu.Lock()
		position := qm.queue.Length()
		if qm.closed.Load() || int64(position) >= qm.maxSize.Load() {
			qm.mu.Unlock()
			if qm.metrics != nil {
				qm.metrics.QueueRejected.Inc()
				qm.metrics.ErrorsTotal.WithLabelValues("queue_full").Inc()
			}
			w.Header().Set("Retry-After", "1")
			errors.WriteError(w, errors.NewUnavailableError(requestID, "Server is busy, try again shortly"))
			return
		}

		done := make(chan struct{})
		qm.queue.Add(done)
		qm.setSizeMetric()
		qm.mu.Unlock()

		qm.processing.Add(1)
		defer func() {
			qm.processing.Add(-1)
			close(done)

			qm.mu.Lock()
			qm.queue.Remove()
			qm.setSizeMetric()
			qm.mu.Unlock()

			if qm.metrics != nil {
				qm.metrics.RequestDuration.WithLabelValues("queue_wait").Observe(time.Since(start).Seconds())
			}
		}()

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), queuePositionKey, position)))
	})
}

// setSizeMetric must be called with mu held.
func (qm *QueueMiddleware) setSizeMetric() {
	if qm.metrics != nil {
		qm.metrics.QueueSize.Set(float64(qm.queue.Length()))
	}
}

// Shutdown stops admitting requests and waits for admitted ones to finish
// or for ctx to be done.
func (qm *QueueMiddleware) Shutdown(ctx context.Context) error {
	qm.closed.Store(true)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if qm.GetQueueSize() == 0 && qm.GetProcessing() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			if qm.metrics != nil {
				qm.metrics.ErrorsTotal.WithLabelValues("queue_shutdown_timeout").Inc()
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

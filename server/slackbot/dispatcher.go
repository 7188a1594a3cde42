package slackbot

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue/v2"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/server/metrics"
)

// ErrBacklogFull is returned by Submit when the backlog is at capacity.
var ErrBacklogFull = errors.New("slack event backlog is full")

// ErrDispatcherClosed is returned by Submit after Stop.
var ErrDispatcherClosed = errors.New("slack dispatcher is closed")

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Dispatcher runs event handlers on a fixed pool of workers. Slack expects
// an acknowledgement within three seconds, so events are queued and
// answered after the transport has acked them.
type Dispatcher struct {
	handle  HandlerFunc
	workers int
	maxSize int
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	cond   *sync.Cond
	queue  *queue.Queue[Event]
	closed bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher. workers and maxSize default to 4
// and 100.
func NewDispatcher(handle HandlerFunc, workers, maxSize int, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	d := &Dispatcher{
		handle:  handle,
		workers: workers,
		maxSize: maxSize,
		logger:  logger,
		metrics: m,
		queue:   queue.New[Event](),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the workers. Handlers get ctx's values but not its
// cancellation: queued events are still answered after ctx is done, until
// Stop returns.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
}

// Submit queues ev for a worker.
func (d *Dispatcher) Submit(ev Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.queue.Length() >= d.maxSize {
		return ErrBacklogFull
	}
	d.queue.Add(ev)
	d.metrics.SlackQueueLength.Set(float64(d.queue.Length()))
	d.cond.Signal()
	return nil
}

// Len returns the number of events waiting for a worker.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Length()
}

// Stop refuses new events and waits until the workers have drained the
// backlog or ctx is done. Handlers still running when ctx is done see
// their context cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		for d.queue.Length() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.queue.Length() == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue.Remove()
		d.metrics.SlackQueueLength.Set(float64(d.queue.Length()))
		d.mu.Unlock()

		d.run(ctx, ev)
	}
}

func (d *Dispatcher) run(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic handling slack event",
				zap.Any("panic", r),
				zap.String("channel", ev.ChannelID()),
			)
		}
	}()
	if err := d.handle(ctx, ev); err != nil {
		d.logger.Warn("slack event failed",
			zap.String("channel", ev.ChannelID()),
			zap.String("ts", ev.Timestamp()),
			zap.Error(err),
		)
	}
}

package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

// ErrPoolStopped is returned by Enqueue once the pool has stopped.
var ErrPoolStopped = errors.New("event pool stopped")

// Event is one inbound topic message waiting to be handled
type Event struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// EventHandler processes one event. A non-nil error stops the pool.
type EventHandler func(ctx context.Context, ev Event) error

// EventPool hands events to a single worker, one at a time and in the order
// they were enqueued. Enqueue blocks while the queue is full, so a slow
// handler delays producers instead of losing events.
type EventPool struct {
	name      string
	logger    customlog.Logger
	queue     chan Event
	queueSize int
	metrics   *PoolMetrics

	mu      sync.Mutex
	handler EventHandler
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// PoolMetrics tracks metrics for a pool
type PoolMetrics struct {
	ProcessedCount    int64
	ErrorCount        int64
	QueuedCount       int64
	LastProcessedTime int64
	ProcessingTimeAvg int64 // in microseconds
	ProcessingTimeMax int64 // in microseconds
	mu                sync.Mutex
}

// NewEventPool creates a pool with room for queueSize pending events
func NewEventPool(name string, queueSize int, logger customlog.Logger) *EventPool {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &EventPool{
		name:      name,
		logger:    logger,
		queue:     make(chan Event, queueSize),
		queueSize: queueSize,
		metrics:   &PoolMetrics{},
		done:      make(chan struct{}),
	}
}

// SetHandler sets the event handler. It must be called before Start.
func (p *EventPool) SetHandler(handler EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start launches the worker. The worker exits when ctx is done, Stop is
// called, or the handler returns an error.
func (p *EventPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.logger.Infof("Starting %s pool (queue=%d)", p.name, p.queueSize)
	go p.worker(runCtx, p.handler)
}

// Enqueue adds an event, waiting for queue space if needed
func (p *EventPool) Enqueue(ctx context.Context, ev Event) error {
	select {
	case <-p.done:
		return ErrPoolStopped
	default:
	}

	select {
	case p.queue <- ev:
		p.metrics.mu.Lock()
		p.metrics.QueuedCount++
		p.metrics.mu.Unlock()
		return nil
	case <-p.done:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops the worker and waits for it to exit. Events still queued are discarded.
func (p *EventPool) Stop() {
	p.mu.Lock()
	running := p.running
	cancel := p.cancel
	p.mu.Unlock()

	if !running {
		return
	}

	cancel()
	<-p.done
}

// Done is closed when the worker has exited.
func (p *EventPool) Done() <-chan struct{} {
	return p.done
}

// Err returns the handler error that stopped the pool, if any.
func (p *EventPool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *EventPool) worker(ctx context.Context, handler EventHandler) {
	defer func() {
		p.logMetrics()
		close(p.done)
	}()

	if handler == nil {
		p.logger.Errorf("No event handler set for %s pool", p.name)
		p.setErr(errors.New("no event handler set"))
		return
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Infof("%s pool stopped", p.name)
			return
		case ev := <-p.queue:
			startTime := time.Now()
			err := handler(ctx, ev)
			p.record(time.Since(startTime).Microseconds(), err)

			if err != nil {
				if ctx.Err() != nil {
					p.logger.Infof("%s pool stopped", p.name)
					return
				}
				p.logger.Errorf("%s pool handler failed on topic '%s': %v", p.name, ev.Topic, err)
				p.setErr(err)
				return
			}
		}
	}
}

func (p *EventPool) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *EventPool) record(processingTime int64, err error) {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	p.metrics.ProcessedCount++
	p.metrics.LastProcessedTime = time.Now().UnixNano()

	if p.metrics.ProcessingTimeAvg == 0 {
		p.metrics.ProcessingTimeAvg = processingTime
	} else {
		// Simple moving average
		p.metrics.ProcessingTimeAvg = (p.metrics.ProcessingTimeAvg + processingTime) / 2
	}
	if processingTime > p.metrics.ProcessingTimeMax {
		p.metrics.ProcessingTimeMax = processingTime
	}
	if err != nil {
		p.metrics.ErrorCount++
	}
}

// GetMetrics returns a copy of the current metrics
func (p *EventPool) GetMetrics() PoolMetrics {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	return PoolMetrics{
		ProcessedCount:    p.metrics.ProcessedCount,
		ErrorCount:        p.metrics.ErrorCount,
		QueuedCount:       p.metrics.QueuedCount,
		LastProcessedTime: p.metrics.LastProcessedTime,
		ProcessingTimeAvg: p.metrics.ProcessingTimeAvg,
		ProcessingTimeMax: p.metrics.ProcessingTimeMax,
	}
}

func (p *EventPool) logMetrics() {
	metrics := p.GetMetrics()

	p.logger.Infof("%s pool metrics: processed=%d, errors=%d, avg_time=%dµs, max_time=%dµs",
		p.name, metrics.ProcessedCount, metrics.ErrorCount,
		metrics.ProcessingTimeAvg, metrics.ProcessingTimeMax)
}

// GetName returns the pool name
func (p *EventPool) GetName() string {
	return p.name
}

// GetQueueLength returns the current length of the event queue
func (p *EventPool) GetQueueLength() int {
	return len(p.queue)
}

// GetQueueCapacity returns the capacity of the event queue
func (p *EventPool) GetQueueCapacity() int {
	return p.queueSize
}

package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/port"
)

var (
	ErrQueueFull = errors.New("audit queue is full")
	ErrClosed    = errors.New("audit dispatcher is closed")
)

var _ port.AuditSink = (*Dispatcher)(nil)

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SinkTimeout time.Duration
}

// Dispatcher queues audit events and delivers them to the next sink from a
// fixed pool of workers, so slow sinks never hold up a transfer.
type Dispatcher struct {
	next    port.AuditSink
	queue   chan port.AuditEvent
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(next port.AuditSink, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		next:    next,
		queue:   make(chan port.AuditEvent, cfg.QueueSize),
		timeout: cfg.SinkTimeout,
		logger:  logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

// Record enqueues event without blocking. A full queue drops the event.
func (d *Dispatcher) Record(ctx context.Context, event port.AuditEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn("audit queue full, dropping event",
			zap.String("operation", event.Operation),
			zap.String("user_id", event.UserID),
		)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Record(ctx, event); err != nil {
			d.logger.Warn("audit delivery failed",
				zap.Int("worker", id),
				zap.String("operation", event.Operation),
				zap.Error(err),
			)
		}
		cancel()
	}
}

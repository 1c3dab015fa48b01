package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond"
	"go.uber.org/zap"
)

// DispatcherConfig sizes the delivery pool.
type DispatcherConfig struct {
	Workers  int
	Capacity int
	Timeout  time.Duration
	// OnFailure is called after a failed delivery, from a worker goroutine.
	OnFailure func(userID string, err error)
}

// Dispatcher delivers messages asynchronously on a bounded worker pool so a
// slow or failing notifier never blocks the caller.
type Dispatcher struct {
	inner   Notifier
	pool    *pond.WorkerPool
	cfg     DispatcherConfig
	logger  *zap.Logger
	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher wraps inner in a worker pool.
func NewDispatcher(inner Notifier, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger = logger.With(zap.String("component", "notify_dispatcher"))

	pool := pond.New(
		cfg.Workers,
		cfg.Capacity,
		pond.MinWorkers(1),
		pond.PanicHandler(func(p interface{}) {
			logger.Error("Notifier panic recovered", zap.Any("panic", p))
		}),
	)

	return &Dispatcher{inner: inner, pool: pool, cfg: cfg, logger: logger}
}

// Send queues the message and returns immediately. It fails only when the
// queue is full or the dispatcher is stopped.
func (d *Dispatcher) Send(_ context.Context, userID, message string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return fmt.Errorf("%w: dispatcher stopped", ErrDelivery)
	}

	ok := d.pool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		defer cancel()
		if err := d.inner.Send(ctx, userID, message); err != nil {
			d.logger.Warn("Notification failed", zap.String("user_id", userID), zap.Error(err))
			if d.cfg.OnFailure != nil {
				d.cfg.OnFailure(userID, err)
			}
		}
	})
	if !ok {
		return fmt.Errorf("%w: delivery queue full (capacity %d)", ErrDelivery, d.cfg.Capacity)
	}
	return nil
}

// Stop waits for queued deliveries to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()
	d.pool.StopAndWait()
}

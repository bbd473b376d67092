// Package dispatch runs post-commit side effects on a bounded worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"budget-backend/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrDeliveryFailed = errors.New("side effect delivery failed")
	ErrQueueFull      = errors.New("dispatch queue full")
	ErrClosed         = errors.New("dispatcher closed")
)

const defaultTaskTimeout = 10 * time.Second

// Task is one side effect. Run gets a fresh context bounded by Timeout.
type Task struct {
	Name        string
	MaxAttempts int
	Timeout     time.Duration
	Run         func(ctx context.Context) error
}

type Options struct {
	Workers      int
	QueueSize    int
	RetryBackoff time.Duration
}

type Dispatcher struct {
	queue chan Task
	opts  Options
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(opts Options, log *zap.Logger) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	d := &Dispatcher{queue: make(chan Task, opts.QueueSize), opts: opts, log: log}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue never blocks. A full queue drops the task.
func (d *Dispatcher) Enqueue(t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("side effect dropped after shutdown", zap.String("task", t.Name))
		metrics.SideEffectsTotal.WithLabelValues(t.Name, "dropped").Inc()
		return ErrClosed
	}
	select {
	case d.queue <- t:
		return nil
	default:
		d.log.Warn("side effect dropped, queue full", zap.String("task", t.Name), zap.Int("queue_size", d.opts.QueueSize))
		metrics.SideEffectsTotal.WithLabelValues(t.Name, "dropped").Inc()
		return ErrQueueFull
	}
}

// Close stops intake and waits for queued tasks to finish or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

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

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		d.run(t)
	}
}

func (d *Dispatcher) run(t Task) {
	attempts := t.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = d.attempt(t, timeout)
		if err == nil {
			metrics.SideEffectsTotal.WithLabelValues(t.Name, "ok").Inc()
			return
		}
		if attempt < attempts {
			backoff := d.opts.RetryBackoff << (attempt - 1)
			d.log.Warn("side effect failed, retrying",
				zap.String("task", t.Name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			time.Sleep(backoff)
		}
	}

	err = fmt.Errorf("%w: %s: %v", ErrDeliveryFailed, t.Name, err)
	d.log.Error("side effect gave up", zap.String("task", t.Name), zap.Int("attempts", attempts), zap.Error(err))
	metrics.SideEffectsTotal.WithLabelValues(t.Name, "failed").Inc()
}

func (d *Dispatcher) attempt(t Task, timeout time.Duration) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(ctx)
}

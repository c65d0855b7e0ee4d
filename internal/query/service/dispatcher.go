package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the queue is full.
	ErrQueueFull = errors.New("async lookup queue is full")
	// ErrDispatcherClosed is returned by Submit after Shutdown.
	ErrDispatcherClosed = errors.New("async dispatcher is shut down")
)

// Dispatcher runs tasks on at most `workers` goroutines with a bounded
// waiting queue.
type Dispatcher struct {
	sem      *semaphore.Weighted
	queue    chan func()
	running  sync.WaitGroup
	loopDone chan struct{}
	logger   *slog.Logger
	onDepth  func(int)

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the dispatch loop. onDepth, when non-nil, receives the
// queue length after every change.
func NewDispatcher(workers, queueSize int, logger *slog.Logger, onDepth func(int)) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	if onDepth == nil {
		onDepth = func(int) {}
	}
	d := &Dispatcher{
		sem:      semaphore.NewWeighted(int64(workers)),
		queue:    make(chan func(), queueSize),
		loopDone: make(chan struct{}),
		logger:   logger,
		onDepth:  onDepth,
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.loopDone)
	for task := range d.queue {
		d.onDepth(len(d.queue))
		// Acquire only fails on context cancellation.
		_ = d.sem.Acquire(context.Background(), 1)
		d.running.Add(1)
		go func() {
			defer d.running.Done()
			defer d.sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("async lookup panicked", "panic", r)
				}
			}()
			task()
		}()
	}
}

// Submit enqueues task without blocking.
func (d *Dispatcher) Submit(task func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- task:
		d.onDepth(len(d.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for queued and running tasks
// until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-d.loopDone
		d.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

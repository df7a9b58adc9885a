package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/breeze-rmm/audlink/internal/logging"
)

var log = logging.L("workerpool")

// Pool is a bounded goroutine pool with a fixed-size queue of items handed
// to a single handler. With one worker, items are handled in submit order.
type Pool[T any] struct {
	handle     func(T)
	maxWorkers int
	queue      chan T
	queueMu    sync.RWMutex
	wg         sync.WaitGroup
	workers    sync.WaitGroup
	accepting  atomic.Bool
	rejected   atomic.Uint64
	stopOnce   sync.Once
	closeOnce  sync.Once
	stopChan   chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a pool with maxWorkers goroutines calling handle and a queue
// of queueSize items.
func New[T any](maxWorkers, queueSize int, handle func(T)) *Pool[T] {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		handle:     handle,
		maxWorkers: maxWorkers,
		queue:      make(chan T, queueSize),
		stopChan:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.accepting.Store(true)

	p.workers.Add(maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go p.worker()
	}

	log.Debug("worker pool started", "workers", maxWorkers, "queueSize", queueSize)
	return p
}

// Submit enqueues an item without blocking. Returns false if the pool is
// stopped or the queue is full; the caller keeps ownership of the item.
// wg.Add is called here (before enqueue) to prevent a race with Drain.
func (p *Pool[T]) Submit(item T) bool {
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	if !p.accepting.Load() {
		return false
	}

	p.wg.Add(1)
	select {
	case p.queue <- item:
		return true
	default:
		p.wg.Done() // undo the Add since the item was not enqueued
		p.rejected.Add(1)
		return false
	}
}

// Rejected returns how many submits were refused because the queue was full.
func (p *Pool[T]) Rejected() uint64 {
	return p.rejected.Load()
}

// Pending returns the number of queued, not yet started items.
func (p *Pool[T]) Pending() int {
	return len(p.queue)
}

// Context is cancelled once the pool has been drained.
func (p *Pool[T]) Context() context.Context {
	return p.ctx
}

// StopAccepting prevents new items from being submitted.
func (p *Pool[T]) StopAccepting() {
	p.accepting.Store(false)
}

// Drain waits for all in-flight and queued items to complete, respecting the
// context deadline. It stops accepting first. After Drain returns the worker
// goroutines exit.
func (p *Pool[T]) Drain(ctx context.Context) {
	p.StopAccepting()
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out", "pending", len(p.queue))
	}

	p.closeOnce.Do(func() {
		p.queueMu.Lock()
		close(p.queue)
		p.queueMu.Unlock()
	})
	p.cancel()
}

// Shutdown is Drain followed by waiting for the workers to exit, bounded by
// the same context.
func (p *Pool[T]) Shutdown(ctx context.Context) {
	p.Drain(ctx)

	exited := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-ctx.Done():
	}
}

func (p *Pool[T]) worker() {
	defer p.workers.Done()
	for {
		select {
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(item)
		case <-p.stopChan:
			// Drain remaining queued items
			for {
				select {
				case item, ok := <-p.queue:
					if !ok {
						return
					}
					p.run(item)
				default:
					return
				}
			}
		}
	}
}

// run handles a single item with panic recovery. wg.Done is called here to
// match the wg.Add in Submit.
func (p *Pool[T]) run(item T) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	p.handle(item)
}

// File: core/concurrency/eventrunner.go
// Author: momentics <momentics@gmail.com>
//
// EventRunner is the single-goroutine task pump that owns one selector.
// All registration, cancellation, IO, and TLS work for that selector runs
// here, serialized in submission order. Cross-goroutine callers pay one
// enqueue and receive no completion signal from the runner itself.

package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-net/api"
)

// EventRunner executes enqueued tasks strictly in arrival order on one
// owning goroutine.
type EventRunner struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  *queue.Queue
	closed bool

	gid  atomic.Uint64
	done chan struct{}

	closeOnce sync.Once
}

// NewEventRunner starts the worker goroutine and returns the runner.
func NewEventRunner() *EventRunner {
	r := &EventRunner{
		tasks: queue.New(),
		done:  make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	started := make(chan struct{})
	go r.run(started)
	<-started
	return r
}

// AddEvent enqueues a task. Tasks submitted from within a running task
// execute after the current one completes. Returns ErrRunnerClosed once
// the runner has been closed.
func (r *EventRunner) AddEvent(task func()) error {
	if task == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrRunnerClosed
	}
	r.tasks.Add(task)
	r.cond.Signal()
	return nil
}

// ThreadID returns the goroutine id of the owning worker.
func (r *EventRunner) ThreadID() uint64 {
	return r.gid.Load()
}

// InRunner reports whether the caller is the owning worker goroutine.
func (r *EventRunner) InRunner() bool {
	return CurrentGoroutineID() == r.gid.Load()
}

// Close stops accepting tasks, drains the ones already queued, and waits
// for the worker to exit. Idempotent.
func (r *EventRunner) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.cond.Broadcast()
		r.mu.Unlock()
		<-r.done
	})
}

func (r *EventRunner) run(started chan<- struct{}) {
	r.gid.Store(CurrentGoroutineID())
	close(started)
	defer close(r.done)
	for {
		r.mu.Lock()
		for r.tasks.Length() == 0 && !r.closed {
			r.cond.Wait()
		}
		if r.tasks.Length() == 0 && r.closed {
			r.mu.Unlock()
			return
		}
		task := r.tasks.Remove().(func())
		r.mu.Unlock()
		r.execute(task)
	}
}

// execute runs one task, recovering from panics so a misbehaving task
// cannot kill the loop.
func (r *EventRunner) execute(task func()) {
	defer func() { _ = recover() }()
	task()
}

package trigger

import (
	"sync"

	"github.com/roach88/friendsync/internal/ir"
)

// changeQueue is a thread-safe unbounded FIFO of changes awaiting a worker.
//
// The poller enqueues and workers dequeue. A buffered signal channel lets
// workers wait with select alongside ctx.Done().
type changeQueue struct {
	mu      sync.Mutex
	changes []ir.Change
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]ir.Change, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends c. Returns false if the queue is closed.
func (q *changeQueue) Enqueue(c ir.Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.changes = append(q.changes, c)
	q.notify()
	return true
}

// TryDequeue removes the front change without blocking.
//
// If changes remain after the removal the signal is re-armed, so a burst
// enqueued under one coalesced signal still wakes every idle worker.
func (q *changeQueue) TryDequeue() (ir.Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return ir.Change{}, false
	}

	c := q.changes[0]
	q.changes[0] = ir.Change{} // release Before pointer for GC
	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
		q.notify()
	}
	return c, true
}

// Wait returns a channel that signals when changes may be available.
// It is closed by Close.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued changes.
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Close stops further enqueues and wakes every waiter.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// notify must be called with q.mu held.
func (q *changeQueue) notify() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

package saga

import "sync"

// inbox is a thread-safe FIFO of operations for the scheduler goroutine.
//
// Everything that reaches the scheduler from outside the baton (external
// dispatches, RunRoot, Cancel, channel readiness) is posted here. The queue
// is unbounded so a burst of source emits never blocks the emitter.
//
// The signal channel lets the Run loop wait with a context.
type inbox struct {
	mu     sync.Mutex
	ops    []func()
	closed bool
	signal chan struct{} // buffered, size 1
}

func newInbox() *inbox {
	return &inbox{
		ops:    make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Post adds an operation to the back of the queue.
// Returns false if the inbox is closed.
func (q *inbox) Post(op func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.ops = append(q.ops, op)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryTake removes the front operation without blocking.
func (q *inbox) TryTake() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return nil, false
	}

	op := q.ops[0]
	q.ops[0] = nil
	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}
	return op, true
}

// Wait returns a channel that signals when operations may be available.
// It is closed when the inbox is closed.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued operations.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Closed reports whether Close was called.
func (q *inbox) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting operations and wakes waiters.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

package channel

import (
	"slices"
	"sync"
)

// Channel is a thread-safe unbounded FIFO queue with an explicit close.
//
// The queue is unbounded so that emitters are never blocked by a slow
// consumer. Readiness is signalled through one-shot watchers instead of a Go
// channel so that the consumer can be a cooperative task that must not block
// its own goroutine while waiting.
type Channel[T any] struct {
	mu       sync.Mutex
	values   []T
	closed   bool
	watchers map[uint64]func()
	nextID   uint64

	onClose   func()
	closeOnce sync.Once
}

// New creates an empty open channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{
		values:   make([]T, 0, 16),
		watchers: make(map[uint64]func()),
	}
}

// Put appends v to the back of the channel.
// Thread-safe: may be called from any goroutine, never blocks.
// Returns false if the channel is closed; the value is dropped.
func (c *Channel[T]) Put(v T) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.values = append(c.values, v)
	fire := c.takeWatchersLocked()
	c.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
	return true
}

// Poll removes and returns the front value without blocking.
//
// Returns (v, true, nil) when a value was available, (zero, false, nil) when
// the channel is open and empty, and (zero, false, ErrClosed) when the channel
// is closed and drained.
func (c *Channel[T]) Poll() (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if len(c.values) == 0 {
		if c.closed {
			return zero, false, ErrClosed
		}
		return zero, false, nil
	}

	v := c.values[0]
	// Clear the slot so the backing array does not pin the value.
	c.values[0] = zero
	if len(c.values) == 1 {
		c.values = c.values[:0]
	} else {
		c.values = c.values[1:]
	}
	return v, true, nil
}

// Watch registers fn to be called once, after the next Put or Close. If the
// channel already has values or is closed, fn is called immediately.
// The returned stop function removes fn if it has not fired yet.
//
// fn is always called outside the channel's lock and may run on the
// producer's goroutine, so it must not block.
func (c *Channel[T]) Watch(fn func()) (stop func()) {
	c.mu.Lock()
	if len(c.values) > 0 || c.closed {
		c.mu.Unlock()
		fn()
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Close marks the channel closed, wakes every watcher and runs the close
// hook (if any) exactly once. Calling Close more than once is a no-op.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fire := c.takeWatchersLocked()
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
	})

	for _, fn := range fire {
		fn()
	}
}

// Closed reports whether Close has been called.
func (c *Channel[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of buffered values.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// takeWatchersLocked detaches all watchers in registration order.
func (c *Channel[T]) takeWatchersLocked() []func() {
	if len(c.watchers) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(c.watchers))
	for id := range c.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fire := make([]func(), 0, len(ids))
	for _, id := range ids {
		fire = append(fire, c.watchers[id])
		delete(c.watchers, id)
	}
	return fire
}


package channel

import "fmt"

// Subscribe attaches emit to an external source and returns the function
// that detaches it. A non-nil error means the source could not be attached.
type Subscribe[T any] func(emit func(T)) (unsubscribe func(), err error)

// Open subscribes to a push source and returns a channel fed by it.
//
// subscribe is called exactly once. The emit callback it receives enqueues
// one value per call, may be called from any goroutine (including
// synchronously from inside subscribe), and becomes a no-op once the channel
// is closed. Closing the channel calls unsubscribe exactly once.
//
// If subscribe fails, Open returns an error wrapping ErrSourceUnavailable and
// no channel.
func Open[T any](subscribe Subscribe[T]) (*Channel[T], error) {
	if subscribe == nil {
		return nil, fmt.Errorf("%w: nil subscribe", ErrSourceUnavailable)
	}

	c := New[T]()
	emit := func(v T) { c.Put(v) }

	unsubscribe, err := subscribe(emit)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	c.mu.Lock()
	c.onClose = unsubscribe
	c.mu.Unlock()

	return c, nil
}

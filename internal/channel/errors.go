package channel

import "errors"

// ErrClosed is returned by Poll once the channel is closed and drained.
var ErrClosed = errors.New("channel closed")

// ErrSourceUnavailable is returned by Open when the source cannot be
// subscribed to.
var ErrSourceUnavailable = errors.New("source unavailable")

// IsClosed returns true if err is, or wraps, ErrClosed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsSourceUnavailable returns true if err is, or wraps, ErrSourceUnavailable.
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

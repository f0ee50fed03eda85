package testutil

import (
	"sync"
	"time"
)

// WindowLimiter admits one event per category per window, reading time
// from a FakeClock. It has the same Allow contract as catrate.Limiter
// configured with a single {window: 1} rate.
type WindowLimiter struct {
	clock  *FakeClock
	window time.Duration

	mu   sync.Mutex
	last map[any]time.Time
}

// NewWindowLimiter creates a limiter over clock.
func NewWindowLimiter(clock *FakeClock, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		clock:  clock,
		window: window,
		last:   make(map[any]time.Time),
	}
}

// Allow records an event for category if the window since the last
// admitted event has elapsed. The returned time is when the next event
// may be admitted.
func (l *WindowLimiter) Allow(category any) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if last, ok := l.last[category]; ok {
		if next := last.Add(l.window); now.Before(next) {
			return next, false
		}
	}
	l.last[category] = now
	return now.Add(l.window), true
}

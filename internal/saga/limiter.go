package saga

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Limiter decides whether an event in a category may proceed now.
// Implemented by *catrate.Limiter.
type Limiter interface {
	Allow(category any) (time.Time, bool)
}

// LimiterFactory builds a limiter that admits one event per window.
type LimiterFactory func(window time.Duration) Limiter

// DefaultLimiter admits one event per category per sliding window, using
// wall-clock time.
func DefaultLimiter(window time.Duration) Limiter {
	return catrate.NewLimiter(map[time.Duration]int{window: 1})
}

package saga

import (
	"fmt"
	"time"

	"github.com/roach88/vigil/internal/channel"
	"github.com/roach88/vigil/internal/event"
)

// TakeEvery spawns a worker for every event matching p, with no limit on
// concurrent workers. Workers are children of t. The registration lives
// until t is cancelled or fails.
func TakeEvery[E event.Event](t *Task, p event.Pattern[E], worker Worker[E]) {
	t.checkpoint()
	s := t.sched
	s.addRegistration(t, s.store.Watch(p, func(ev event.Event) {
		s.spawn(t, workerName(t, ev.Tag()), narrowed(p, ev, worker))
	}))
}

// TakeLatest keeps at most one live worker. A matching event cancels the
// previous worker, running its cleanups, before the next one is spawned.
func TakeLatest[E event.Event](t *Task, p event.Pattern[E], worker Worker[E]) {
	t.checkpoint()
	s := t.sched
	var last *Task
	s.addRegistration(t, s.store.Watch(p, func(ev event.Event) {
		if last != nil && !last.finalized {
			s.cancel(last)
		}
		last = s.spawn(t, workerName(t, ev.Tag()), narrowed(p, ev, worker))
	}))
}

// Throttle spawns a worker for the first matching event and drops further
// matches until window has elapsed.
func Throttle[E event.Event](t *Task, window time.Duration, p event.Pattern[E], worker Worker[E]) {
	if window <= 0 {
		panic(fmt.Sprintf("saga: throttle window must be positive, got %s", window))
	}
	t.checkpoint()
	s := t.sched
	lim := s.limiters(window)
	category := fmt.Sprintf("%s/%s", t.id, p)
	s.addRegistration(t, s.store.Watch(p, func(ev event.Event) {
		if _, ok := lim.Allow(category); !ok {
			s.logger.Debug("throttled", "task", t.name, "tag", ev.Tag())
			return
		}
		s.spawn(t, workerName(t, ev.Tag()), narrowed(p, ev, worker))
	}))
}

// ActionChannel buffers every future event matching p in a private channel.
// The channel is closed, and the registration dropped, when t exits.
func ActionChannel[E event.Event](t *Task, p event.Pattern[E]) *channel.Channel[E] {
	t.checkpoint()
	s := t.sched
	ch := channel.New[E]()
	stop := s.store.Watch(p, func(ev event.Event) {
		v, _ := p.Narrow(ev)
		ch.Put(v)
	})
	t.Defer(func() error {
		stop()
		ch.Close()
		return nil
	})
	return ch
}

// narrowed defers narrowing to the worker's own goroutine, so a type
// mismatch panics inside a task rather than inside the dispatch.
func narrowed[E event.Event](p event.Pattern[E], ev event.Event, worker Worker[E]) Body {
	return func(w *Task) error {
		v, _ := p.Narrow(ev)
		return worker(w, v)
	}
}

package saga

import (
	"github.com/roach88/vigil/internal/channel"
	"github.com/roach88/vigil/internal/event"
)

// Take suspends t until the store delivers an event matching p and returns
// it narrowed to E. Only events dispatched after the call are seen.
func Take[E event.Event](t *Task, p event.Pattern[E]) E {
	t.settle()
	s := t.sched
	cancel := s.store.SubscribeForTake(p, func(ev event.Event) {
		s.wake(t, resumeSignal{ev: ev})
	})
	sig := t.park(cancel)
	v, _ := p.Narrow(sig.ev)
	return v
}

// TakeChan suspends t until ch has a value or is closed. Buffered values are
// returned before channel.ErrClosed.
func TakeChan[T any](t *Task, ch *channel.Channel[T]) (T, error) {
	t.settle()
	s := t.sched
	for {
		t.checkpoint()
		v, ok, err := ch.Poll()
		if ok || err != nil {
			return v, err
		}

		// Readiness can fire on any goroutine; it is posted back and only
		// wakes the park it was registered for.
		seq := t.parkSeq + 1
		stop := ch.Watch(func() {
			s.inbox.Post(func() {
				if t.parkSeq == seq {
					s.wake(t, resumeSignal{})
				}
			})
		})
		t.park(stop)
	}
}

// Put queues ev for dispatch. The dispatch runs before t next takes, joins
// or suspends, and otherwise when t ends; puts from one task are
// dispatched in call order. A Take that t starts after Put never sees the
// put event.
func Put(t *Task, ev event.Event) {
	t.checkpoint()
	s := t.sched
	s.outbox = append(s.outbox, ev)
}

// PutResolve dispatches ev before returning: reducers, listeners, take
// wake-ups and worker spawns have all happened. Puts queued earlier are
// dispatched first. Spawned workers have not run yet.
func PutResolve(t *Task, ev event.Event) {
	t.checkpoint()
	s := t.sched
	s.flushPuts()
	s.store.Dispatch(ev)
	t.checkpoint()
}

// Fork starts a child task of t.
func Fork(t *Task, name string, body Body) *Task {
	t.checkpoint()
	return t.sched.spawn(t, name, body)
}

// Join suspends t until child finishes. It returns the child's error if the
// child failed, and nil if it completed or was cancelled. A failing child of
// t fails t itself, so t unwinds instead of returning.
func Join(t *Task, child *Task) error {
	t.settle()
	if !child.finalized {
		child.joiners = append(child.joiners, t)
		t.park(func() { child.removeJoiner(t) })
	}
	if child.State() == Failed {
		return child.err
	}
	return nil
}

// Cancel cancels target and its subtree. When target is t or an ancestor
// of t, t unwinds before Cancel returns.
func Cancel(t *Task, target *Task) {
	t.checkpoint()
	t.sched.cancel(target)
	t.checkpoint()
}

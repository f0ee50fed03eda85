package saga

import (
	"testing"

	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/store"
)

func reduceTags(s []event.Tag, ev event.Raw) []event.Tag {
	return append(append([]event.Tag(nil), s...), ev.Tag())
}

// fixture is a store recording dispatched tags plus a scheduler with
// sequential IDs and a capturing reporter.
type fixture struct {
	store   *store.Store[[]event.Tag]
	sched   *Scheduler
	reports []error
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{}
	f.store = store.New[[]event.Tag](nil, reduceTags)
	base := []Option{
		WithIDGenerator(NewSequentialGenerator("t")),
		WithReporter(func(_ *Task, err error) { f.reports = append(f.reports, err) }),
	}
	f.sched = New(f.store, append(base, opts...)...)
	return f
}

// dispatch queues ev and drives the scheduler until idle.
func (f *fixture) dispatch(ev event.Raw) {
	f.sched.Dispatch(ev)
	f.sched.Flush()
}

package saga

import (
	"runtime"
	"sync/atomic"

	"github.com/roach88/vigil/internal/event"
)

// State is the lifecycle state of a task.
type State int32

const (
	// Ready tasks are queued to run.
	Ready State = iota + 1
	// Running tasks hold the baton, or are waiting on a nested switch.
	Running
	// Suspended tasks wait for an event, a channel, or their children.
	Suspended
	// Completed tasks finished without error.
	Completed
	// Cancelled tasks were cancelled before finishing.
	Cancelled
	// Failed tasks finished with an error; see Task.Err.
	Failed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Final reports whether the state is terminal.
func (s State) Final() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Body is the code of a task.
type Body func(t *Task) error

// Worker handles one event for a standing registration.
type Worker[E event.Event] func(t *Task, ev E) error

// resumeSignal is handed to a parked task when it gets the baton back.
type resumeSignal struct {
	ev    event.Event
	abort bool
}

// Task is one cooperative unit of work owned by a Scheduler.
//
// All fields except state are touched only by the goroutine holding the
// scheduler baton.
type Task struct {
	sched  *Scheduler
	id     string
	name   string
	seq    int64
	body   Body
	parent *Task

	state atomic.Int32
	err   error
	done  chan struct{}

	children      []*Task
	registrations []func()
	cleanups      []func() error
	joiners       []*Task

	started   bool
	bodyDone  bool
	cancelled bool
	aborted   bool
	inCleanup bool
	finalized bool
	fatal     any

	resume  chan resumeSignal
	parked  chan struct{}
	pending resumeSignal
	detach  func()
	parkSeq uint64
}

// ID returns the task ID.
func (t *Task) ID() string {
	return t.id
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Parent returns the parent task, or nil for a root.
func (t *Task) Parent() *Task {
	return t.parent
}

// State returns the current lifecycle state.
// Safe for concurrent use.
func (t *Task) State() State {
	return State(t.state.Load())
}

func (t *Task) setState(s State) {
	t.state.Store(int32(s))
}

// Done is closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the failure of a Failed task. It is nil for other states and
// must only be read after Done is closed or from the scheduler goroutine.
func (t *Task) Err() error {
	return t.err
}

// Cancelled reports whether cancellation was requested for the task.
// Cleanups use it to tell cancellation from normal completion.
func (t *Task) Cancelled() bool {
	return t.cancelled
}

// Defer pushes a cleanup onto the task's ownership stack. Cleanups run in
// LIFO order exactly once when the task ends, whatever the exit path.
// A cleanup must not suspend.
func (t *Task) Defer(fn func() error) {
	if t.finalized {
		if err := t.sched.runCleanup(t, fn); err != nil {
			t.sched.logger.Warn("cleanup failed after task finished", "task", t.name, "id", t.id, "error", err)
		}
		return
	}
	t.cleanups = append(t.cleanups, fn)
}

// Children returns the live child tasks in spawn order.
func (t *Task) Children() []*Task {
	return append([]*Task(nil), t.children...)
}

// checkpoint unwinds the task if it was cancelled or aborted while running.
// Only effective on the task's own goroutine.
func (t *Task) checkpoint() {
	if t.sched.current != t || t.bodyDone || t.inCleanup {
		return
	}
	if t.cancelled || t.aborted {
		runtime.Goexit()
	}
}

// settle dispatches the puts t queued so far before t registers interest in
// anything new, then unwinds if that dispatch cancelled t.
func (t *Task) settle() {
	if t.sched.current != t || t.inCleanup {
		return
	}
	t.checkpoint()
	t.sched.flushPuts()
	t.checkpoint()
}

// park gives the baton back until the task is woken. detach undoes the
// registration that will wake it.
func (t *Task) park(detach func()) resumeSignal {
	if t.inCleanup {
		if detach != nil {
			detach()
		}
		panic(ErrSuspendInCleanup)
	}
	if t.sched.current != t {
		if detach != nil {
			detach()
		}
		panic(ErrNotRunning)
	}
	t.detach = detach
	t.parkSeq++
	t.setState(Suspended)

	t.parked <- struct{}{}
	sig := <-t.resume

	if sig.abort {
		runtime.Goexit()
	}
	t.checkpoint()
	return sig
}

func (t *Task) removeChild(c *Task) {
	for i, x := range t.children {
		if x == c {
			t.children = append(t.children[:i:i], t.children[i+1:]...)
			return
		}
	}
}

func (t *Task) removeJoiner(j *Task) {
	for i, x := range t.joiners {
		if x == j {
			t.joiners = append(t.joiners[:i:i], t.joiners[i+1:]...)
			return
		}
	}
}

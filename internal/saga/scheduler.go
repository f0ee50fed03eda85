package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/roach88/vigil/internal/event"
)

// Store is the part of the event store the scheduler needs.
// Implemented by *store.Store.
type Store interface {
	Dispatch(ev event.Raw)
	SubscribeForTake(m event.Matcher, wake func(event.Event)) (cancel func())
	Watch(m event.Matcher, fn func(event.Event)) (cancel func())
}

// IDGenerator generates task IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// Reporter receives failed root tasks.
type Reporter func(t *Task, err error)

// Scheduler runs cooperative tasks against a Store.
//
// Thread-safety model:
//   - RunRoot, Dispatch, Cancel, Stop: safe from any goroutine
//   - Run or Flush: must be called from exactly one goroutine, never both
//   - Effects (Take, Put, Fork, ...): only from inside a task body
//
// Once a store is bound to a scheduler, external code dispatches through
// Scheduler.Dispatch so that take wake-ups and worker spawns happen on the
// scheduler goroutine.
type Scheduler struct {
	store    Store
	logger   *slog.Logger
	ids      IDGenerator
	reporter Reporter
	limiters LimiterFactory

	inbox   *inbox
	outbox  []event.Event
	ready   []*Task
	current *Task
	roots   []*Task
	tasks   map[string]*Task
	nextSeq atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithIDGenerator sets the task ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Scheduler) {
		s.ids = g
	}
}

// WithReporter sets the handler for failed root tasks.
// Default: log at error level.
func WithReporter(r Reporter) Option {
	return func(s *Scheduler) {
		s.reporter = r
	}
}

// WithLimiterFactory sets how Throttle builds its window limiter.
// Default: DefaultLimiter.
func WithLimiterFactory(f LimiterFactory) Option {
	return func(s *Scheduler) {
		s.limiters = f
	}
}

// New creates a scheduler bound to store.
func New(store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		ids:      UUIDv7Generator{},
		limiters: DefaultLimiter,
		inbox:    newInbox(),
		tasks:    make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.reporter == nil {
		s.reporter = s.logFailure
	}
	return s
}

func (s *Scheduler) logFailure(t *Task, err error) {
	s.logger.Error("root task failed", "task", t.name, "id", t.id, "error", err)
}

// RunRoot starts a root task. The task is queued; it first runs when the
// scheduler next drives (Run or Flush).
// Thread-safe: may be called from any goroutine.
func (s *Scheduler) RunRoot(name string, body Body) *Task {
	t := s.newTask(nil, name, body)
	if !s.inbox.Post(func() { s.adopt(t) }) {
		// Stopped: the task never runs.
		t.cancelled = true
		t.finalized = true
		t.setState(Cancelled)
		close(t.done)
	}
	return t
}

// Dispatch queues ev for dispatch on the scheduler goroutine.
// Thread-safe: may be called from any goroutine.
// Returns false if the scheduler has been stopped.
func (s *Scheduler) Dispatch(ev event.Raw) bool {
	return s.inbox.Post(func() { s.store.Dispatch(ev) })
}

// Cancel queues cancellation of t.
// Thread-safe: may be called from any goroutine.
func (s *Scheduler) Cancel(t *Task) bool {
	return s.inbox.Post(func() { s.cancel(t) })
}

// Stop shuts the scheduler down. Run cancels all roots and returns nil.
// Thread-safe: may be called from any goroutine.
func (s *Scheduler) Stop() {
	s.inbox.Close()
}

// Roots returns the live root tasks in start order.
// Must be called from the scheduler goroutine (or after Run returned).
func (s *Scheduler) Roots() []*Task {
	return append([]*Task(nil), s.roots...)
}

// Lookup returns the live task with the given ID.
// Must be called from the scheduler goroutine (or after Run returned).
func (s *Scheduler) Lookup(id string) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Live returns the number of tasks that have not finished.
// Must be called from the scheduler goroutine (or after Run returned).
func (s *Scheduler) Live() int {
	return len(s.tasks)
}

// Run drives the scheduler until ctx is cancelled or Stop is called.
// On exit all root tasks are cancelled and their cleanups have run.
//
// Must be called from exactly one goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting")

	for {
		s.Flush()

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping: context cancelled")
			s.shutdown()
			return ctx.Err()

		case <-s.inbox.Wait():
			// The signal channel is closed by Stop.
			if s.inbox.Closed() && s.inbox.Len() == 0 {
				s.logger.Info("scheduler stopping: stopped")
				s.shutdown()
				return nil
			}
		}
	}
}

// Flush runs queued work until nothing is ready. Each step dispatches
// pending puts first, then runs ready tasks in FIFO order, and only takes
// the next inbox operation once no task is ready. A root started by RunRoot
// therefore reaches its first suspension before a later Dispatch is seen.
//
// Flush is the deterministic driver used by tests and the scenario harness.
// It must not be called from a task or concurrently with Run.
func (s *Scheduler) Flush() {
	for s.step() {
	}
}

func (s *Scheduler) step() bool {
	if s.flushPuts() {
		return true
	}
	if len(s.ready) > 0 {
		t := s.ready[0]
		s.ready[0] = nil
		s.ready = s.ready[1:]
		s.switchTo(t, t.pending)
		return true
	}
	if op, ok := s.inbox.TryTake(); ok {
		op()
		return true
	}
	return false
}

// flushPuts dispatches queued puts in order. Returns true if any ran.
func (s *Scheduler) flushPuts() bool {
	if len(s.outbox) == 0 {
		return false
	}
	for len(s.outbox) > 0 {
		ev := s.outbox[0]
		s.outbox[0] = nil
		s.outbox = s.outbox[1:]
		s.store.Dispatch(ev)
	}
	return true
}

func (s *Scheduler) shutdown() {
	s.inbox.Close()
	s.Flush()
	for _, r := range s.Roots() {
		s.cancel(r)
	}
	s.Flush()
}

func (s *Scheduler) newTask(parent *Task, name string, body Body) *Task {
	return &Task{
		sched:  s,
		id:     s.ids.Generate(),
		name:   name,
		seq:    s.nextSeq.Add(1),
		body:   body,
		parent: parent,
		done:   make(chan struct{}),
		resume: make(chan resumeSignal),
		parked: make(chan struct{}),
	}
}

// adopt registers a root task and queues it.
func (s *Scheduler) adopt(t *Task) {
	s.roots = append(s.roots, t)
	s.tasks[t.id] = t
	s.logger.Debug("root task started", "task", t.name, "id", t.id)
	s.enqueue(t, resumeSignal{})
}

// spawn creates a child of parent and queues it.
func (s *Scheduler) spawn(parent *Task, name string, body Body) *Task {
	t := s.newTask(parent, name, body)
	parent.children = append(parent.children, t)
	s.tasks[t.id] = t
	s.enqueue(t, resumeSignal{})
	return t
}

func (s *Scheduler) enqueue(t *Task, sig resumeSignal) {
	t.pending = sig
	t.setState(Ready)
	s.ready = append(s.ready, t)
}

// wake moves a parked task to the ready queue.
func (s *Scheduler) wake(t *Task, sig resumeSignal) {
	if t.bodyDone || t.State() != Suspended {
		return
	}
	t.detach = nil
	s.enqueue(t, sig)
}

func (s *Scheduler) removeReady(t *Task) {
	for i, x := range s.ready {
		if x == t {
			s.ready = append(s.ready[:i:i], s.ready[i+1:]...)
			return
		}
	}
}

// switchTo hands the baton to t and waits until t parks or its body ends.
func (s *Scheduler) switchTo(t *Task, sig resumeSignal) {
	prev := s.current
	s.current = t
	t.setState(Running)

	if !t.started {
		t.started = true
		go s.runTask(t)
	} else {
		t.resume <- sig
	}
	<-t.parked

	s.current = prev
	if t.bodyDone {
		s.maybeFinalize(t)
	}
	if t.fatal != nil {
		f := t.fatal
		t.fatal = nil
		panic(f)
	}
}

// runTask is the goroutine of a task. It exits when the body returns,
// panics, or unwinds via runtime.Goexit.
func (s *Scheduler) runTask(t *Task) {
	returned := false
	defer func() {
		if !returned {
			if r := recover(); r != nil {
				s.recordPanic(t, r, debug.Stack())
			}
		}
		t.bodyDone = true
		t.setState(Suspended)
		t.parked <- struct{}{}
	}()

	err := t.body(t)
	returned = true
	if err != nil && t.err == nil {
		t.err = &TaskError{Code: ErrCodeTaskFailed, Task: t.name, TaskID: t.id, Err: err}
	}
}

func (s *Scheduler) recordPanic(t *Task, r any, stack []byte) {
	if pm, ok := r.(*event.PatternMismatchError); ok {
		t.fatal = pm
	}
	te := &TaskError{Code: ErrCodeTaskPanicked, Task: t.name, TaskID: t.id, Panic: r, Stack: stack}
	if err, ok := r.(error); ok {
		te.Err = err
	}
	if t.err == nil {
		t.err = te
	} else {
		t.err = errors.Join(t.err, te)
	}
	s.logger.Debug("task panicked", "task", t.name, "id", t.id, "panic", r)
}

func (s *Scheduler) maybeFinalize(t *Task) {
	if t.finalized || !t.bodyDone || len(t.children) > 0 || len(t.registrations) > 0 {
		return
	}
	s.finalize(t)
}

// finalize runs the cleanup stack and settles the terminal state.
func (s *Scheduler) finalize(t *Task) {
	t.finalized = true

	t.inCleanup = true
	var errs []error
	for i := len(t.cleanups) - 1; i >= 0; i-- {
		if err := s.runCleanup(t, t.cleanups[i]); err != nil {
			errs = append(errs, err)
		}
	}
	t.cleanups = nil
	t.inCleanup = false
	cleanupErr := errors.Join(errs...)

	var final State
	switch {
	case t.err != nil:
		final = Failed
		if cleanupErr != nil {
			t.err = errors.Join(t.err, cleanupErr)
		}
	case t.cancelled:
		final = Cancelled
		if cleanupErr != nil {
			s.logger.Warn("cleanup failed during cancellation", "task", t.name, "id", t.id, "error", cleanupErr)
		}
	case cleanupErr != nil:
		final = Failed
		t.err = cleanupErr
	default:
		final = Completed
	}

	t.setState(final)
	delete(s.tasks, t.id)
	close(t.done)
	s.logger.Debug("task finished", "task", t.name, "id", t.id, "state", final.String())

	joiners := t.joiners
	t.joiners = nil
	for _, j := range joiners {
		s.wake(j, resumeSignal{})
	}

	p := t.parent
	if p == nil {
		s.removeRoot(t)
		if final == Failed {
			s.reporter(t, t.err)
		}
		return
	}

	p.removeChild(t)
	switch {
	case final == Failed && p.cancelled:
		s.logger.Warn("child failed during cancellation", "task", t.name, "id", t.id, "error", t.err)
		s.maybeFinalize(p)
	case final == Failed:
		s.abort(p, t)
	default:
		s.maybeFinalize(p)
	}
}

func (s *Scheduler) runCleanup(t *Task, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			te := &TaskError{Code: ErrCodeCleanupFailed, Task: t.name, TaskID: t.id, Panic: r, Stack: debug.Stack()}
			if e, ok := r.(error); ok {
				te.Err = e
			}
			err = te
		}
	}()
	if e := fn(); e != nil {
		return &TaskError{Code: ErrCodeCleanupFailed, Task: t.name, TaskID: t.id, Err: e}
	}
	return nil
}

func (s *Scheduler) removeRoot(t *Task) {
	for i, r := range s.roots {
		if r == t {
			s.roots = append(s.roots[:i:i], s.roots[i+1:]...)
			return
		}
	}
}

// abort fails p because child failed.
func (s *Scheduler) abort(p *Task, child *Task) {
	if p.finalized {
		return
	}
	if p.err == nil {
		p.err = &TaskError{Code: ErrCodeChildFailed, Task: p.name, TaskID: p.id, Err: child.err}
	}
	if p.aborted {
		s.maybeFinalize(p)
		return
	}
	p.aborted = true
	s.logger.Debug("aborting task", "task", p.name, "id", p.id, "child", child.name)
	s.cancelChildren(p)
	s.dropRegistrations(p)
	s.unwind(p)
}

// cancel cancels t and its subtree, children first.
func (s *Scheduler) cancel(t *Task) {
	if t.finalized || t.cancelled {
		return
	}
	t.cancelled = true
	s.logger.Debug("cancelling task", "task", t.name, "id", t.id)
	s.cancelChildren(t)
	s.dropRegistrations(t)
	s.unwind(t)
}

func (s *Scheduler) cancelChildren(t *Task) {
	for _, c := range t.Children() {
		s.cancel(c)
	}
}

func (s *Scheduler) dropRegistrations(t *Task) {
	regs := t.registrations
	t.registrations = nil
	for _, stop := range regs {
		stop()
	}
}

// unwind ends the body of a cancelled or aborted task.
func (s *Scheduler) unwind(t *Task) {
	switch {
	case t.finalized:
	case !t.started:
		t.bodyDone = true
		s.removeReady(t)
		s.maybeFinalize(t)
	case t.bodyDone:
		s.maybeFinalize(t)
	case t.State() == Suspended || t.State() == Ready:
		if t.detach != nil {
			t.detach()
			t.detach = nil
		}
		t.parkSeq++
		s.removeReady(t)
		s.switchTo(t, resumeSignal{abort: true})
	default:
		// Running: unwinds at its next checkpoint.
	}
}

// addRegistration ties a standing store registration to its owner.
func (s *Scheduler) addRegistration(owner *Task, stop func()) {
	owner.registrations = append(owner.registrations, stop)
}

func workerName(owner *Task, tag event.Tag) string {
	return fmt.Sprintf("%s>%s", owner.name, tag)
}

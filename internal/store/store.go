package store

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/vigil/internal/event"
)

// Reducer computes the next state for a dispatched event.
// Reducers must be pure and must not dispatch.
type Reducer[S any] func(state S, ev event.Raw) S

// Dispatched is what a listener sees after the reducer has run.
type Dispatched[S any] struct {
	Seq   int64
	Event event.Raw
	State S
}

// Listener observes every dispatch, reserved events included.
type Listener[S any] func(Dispatched[S])

// Option configures a Store.
type Option func(*options)

type options struct {
	logger *slog.Logger
	clock  *Clock
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the sequence clock. Default: a clock starting at 0.
func WithClock(c *Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

type subscription struct {
	id      uint64
	matcher event.Matcher
	fn      func(event.Event)
	once    bool
	active  atomic.Bool
}

type listenerEntry[S any] struct {
	id     uint64
	fn     Listener[S]
	active atomic.Bool
}

// Store owns state and the event subscription registry.
type Store[S any] struct {
	reducer Reducer[S]
	clock   *Clock
	logger  *slog.Logger

	stateMu sync.RWMutex
	state   S

	regMu     sync.Mutex
	nextID    uint64
	subs      []*subscription
	listeners []*listenerEntry[S]

	dispatchMu  sync.Mutex
	pending     []event.Raw
	dispatching bool
}

// New creates a store with an initial state and reducer.
func New[S any](initial S, reducer Reducer[S], opts ...Option) *Store[S] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = NewClock()
	}
	return &Store[S]{
		reducer: reducer,
		clock:   o.clock,
		logger:  o.logger,
		state:   initial,
	}
}

// State returns the current state.
func (s *Store[S]) State() S {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Seq returns the sequence number of the last dispatch.
func (s *Store[S]) Seq() int64 {
	return s.clock.Current()
}

// Subscribe registers a state listener. The returned func removes it.
func (s *Store[S]) Subscribe(fn Listener[S]) (unsubscribe func()) {
	l := &listenerEntry[S]{fn: fn}
	l.active.Store(true)

	s.regMu.Lock()
	s.nextID++
	l.id = s.nextID
	s.listeners = append(s.listeners, l)
	s.regMu.Unlock()

	return func() {
		if !l.active.CompareAndSwap(true, false) {
			return
		}
		s.regMu.Lock()
		defer s.regMu.Unlock()
		s.listeners = removeByID(s.listeners, l.id, func(e *listenerEntry[S]) uint64 { return e.id })
	}
}

// SubscribeForTake registers a one-shot subscription. wake is called with
// the first matching event, after the subscription has been removed.
func (s *Store[S]) SubscribeForTake(m event.Matcher, wake func(event.Event)) (cancel func()) {
	return s.register(m, wake, true)
}

// Watch registers a standing subscription called for every matching event
// until cancel is called.
func (s *Store[S]) Watch(m event.Matcher, fn func(event.Event)) (cancel func()) {
	return s.register(m, fn, false)
}

func (s *Store[S]) register(m event.Matcher, fn func(event.Event), once bool) func() {
	sub := &subscription{matcher: m, fn: fn, once: once}
	sub.active.Store(true)

	s.regMu.Lock()
	s.nextID++
	sub.id = s.nextID
	s.subs = append(s.subs, sub)
	s.regMu.Unlock()

	return func() { s.unregister(sub) }
}

// unregister removes sub. Returns false if it was already gone.
func (s *Store[S]) unregister(sub *subscription) bool {
	if !sub.active.CompareAndSwap(true, false) {
		return false
	}
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.subs = removeByID(s.subs, sub.id, func(e *subscription) uint64 { return e.id })
	return true
}

// Subscriptions returns the number of live take and watch subscriptions.
func (s *Store[S]) Subscriptions() int {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return len(s.subs)
}

// Dispatch reduces ev, notifies listeners and delivers ev to matching
// subscriptions before returning. Safe for concurrent use; dispatches are
// processed one at a time in arrival order.
//
// A Dispatch made while another is in progress, from a listener or from
// another goroutine, only queues ev and returns at once. The in-progress
// call processes it before that call returns.
//
// If the reducer or a listener panics, the panic propagates to the caller
// that was processing; events queued behind it stay queued for the next
// Dispatch.
func (s *Store[S]) Dispatch(ev event.Raw) {
	s.dispatchMu.Lock()
	s.pending = append(s.pending, ev)
	if s.dispatching {
		s.dispatchMu.Unlock()
		return
	}
	s.dispatching = true
	s.dispatchMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.dispatchMu.Lock()
			s.dispatching = false
			s.dispatchMu.Unlock()
			panic(r)
		}
	}()

	for {
		s.dispatchMu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.dispatchMu.Unlock()
			return
		}
		next := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.dispatchMu.Unlock()

		s.dispatchOne(next)
	}
}

func (s *Store[S]) dispatchOne(ev event.Raw) {
	state := s.reduce(ev)
	seq := s.clock.Next()
	s.logger.Debug("dispatch", "seq", seq, "tag", ev.Tag())

	s.regMu.Lock()
	listeners := append([]*listenerEntry[S](nil), s.listeners...)
	s.regMu.Unlock()

	d := Dispatched[S]{Seq: seq, Event: ev, State: state}
	for _, l := range listeners {
		if l.active.Load() {
			l.fn(d)
		}
	}

	caught, ok := ev.(event.Event)
	if !ok || event.IsReserved(ev.Tag()) {
		return
	}

	s.regMu.Lock()
	subs := append([]*subscription(nil), s.subs...)
	s.regMu.Unlock()

	for _, sub := range subs {
		if !sub.matcher.Matches(caught) {
			continue
		}
		if sub.once {
			if !s.unregister(sub) {
				continue
			}
		} else if !sub.active.Load() {
			continue
		}
		sub.fn(caught)
	}
}

func (s *Store[S]) reduce(ev event.Raw) S {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = s.reducer(s.state, ev)
	return s.state
}

func removeByID[T any](list []T, id uint64, idOf func(T) uint64) []T {
	for i, e := range list {
		if idOf(e) == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

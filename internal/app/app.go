// Package app wires the store, the scheduler and the visibility bridge into
// one runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/journal"
	"github.com/roach88/vigil/internal/saga"
	"github.com/roach88/vigil/internal/store"
	"github.com/roach88/vigil/internal/visibility"
)

// RootName is the name of the bridge's root task.
const RootName = "visibility"

// Option configures an App.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	journal      *journal.Journal
	runToken     string
	reportWindow time.Duration
	dispatchLog  bool
	autoWatch    bool
	ids          saga.IDGenerator
	limiters     saga.LimiterFactory
	reporter     saga.Reporter
	initial      *State
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithJournal records every dispatch into j under runToken.
// An empty token is replaced by a fresh UUIDv7.
func WithJournal(j *journal.Journal, runToken string) Option {
	return func(o *options) {
		o.journal = j
		o.runToken = runToken
	}
}

// WithReportWindow enables the throttled visibility report.
func WithReportWindow(d time.Duration) Option {
	return func(o *options) {
		o.reportWindow = d
	}
}

// WithDispatchLog logs every dispatch with its resulting state.
func WithDispatchLog(enabled bool) Option {
	return func(o *options) {
		o.dispatchLog = enabled
	}
}

// WithAutoWatch dispatches START_WATCHING_VISIBILITY right after the root
// task starts. Default: true.
func WithAutoWatch(enabled bool) Option {
	return func(o *options) {
		o.autoWatch = enabled
	}
}

// WithIDGenerator sets the scheduler's task ID generator.
func WithIDGenerator(g saga.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithLimiterFactory sets the scheduler's throttle limiter factory.
func WithLimiterFactory(f saga.LimiterFactory) Option {
	return func(o *options) {
		o.limiters = f
	}
}

// WithReporter sets the handler for failed root tasks.
func WithReporter(r saga.Reporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

// WithInitialState overrides Initial().
func WithInitialState(s State) Option {
	return func(o *options) {
		o.initial = &s
	}
}

// App is a store, a scheduler and the visibility bridge bound together.
type App struct {
	Store     *store.Store[State]
	Scheduler *saga.Scheduler

	src      visibility.Source
	opts     options
	recorder *journal.Recorder[State]
	root     *saga.Task
}

// New builds an App reading visibility from src. Nothing runs until Start.
func New(ctx context.Context, src visibility.Source, opts ...Option) (*App, error) {
	o := options{autoWatch: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	initial := Initial()
	if o.initial != nil {
		initial = *o.initial
	}

	st := store.New(initial, Reduce, store.WithLogger(o.logger))

	schedOpts := []saga.Option{saga.WithLogger(o.logger)}
	if o.ids != nil {
		schedOpts = append(schedOpts, saga.WithIDGenerator(o.ids))
	}
	if o.limiters != nil {
		schedOpts = append(schedOpts, saga.WithLimiterFactory(o.limiters))
	}
	if o.reporter != nil {
		schedOpts = append(schedOpts, saga.WithReporter(o.reporter))
	}

	a := &App{
		Store:     st,
		Scheduler: saga.New(st, schedOpts...),
		src:       src,
		opts:      o,
	}

	if o.journal != nil {
		token := o.runToken
		if token == "" {
			token = saga.UUIDv7Generator{}.Generate()
		}
		rec, err := journal.NewRecorder[State](ctx, o.journal, token, st.Seq(), o.logger)
		if err != nil {
			return nil, fmt.Errorf("start journal run: %w", err)
		}
		a.recorder = rec
		st.Subscribe(rec.Listener())
	}

	st.Subscribe(visibility.LogChanges[State](o.logger))
	if o.dispatchLog {
		st.Subscribe(DispatchLogger(o.logger))
	}
	return a, nil
}

// Start queues the bridge's root task and, unless disabled, the initial
// START_WATCHING_VISIBILITY. Calling Start twice returns the same task.
func (a *App) Start() *saga.Task {
	if a.root != nil {
		return a.root
	}
	a.root = a.Scheduler.RunRoot(RootName, visibility.Root(a.src,
		visibility.WithLogger(a.opts.logger),
		visibility.WithReportWindow(a.opts.reportWindow),
	))
	if a.opts.autoWatch {
		a.Scheduler.Dispatch(event.StartWatchingVisibility{})
	}
	return a.root
}

// Run starts the app if needed and drives the scheduler until ctx ends or
// Stop is called.
func (a *App) Run(ctx context.Context) error {
	a.Start()
	a.opts.logger.Info("app starting", "run", a.RunToken())
	err := a.Scheduler.Run(ctx)
	a.opts.logger.Info("app stopped", "state", a.Store.State())
	return err
}

// Stop shuts the scheduler down; Run returns after cleanups ran.
func (a *App) Stop() {
	a.Scheduler.Stop()
}

// Dispatch queues ev on the scheduler. Safe from any goroutine.
func (a *App) Dispatch(ev event.Raw) bool {
	return a.Scheduler.Dispatch(ev)
}

// State returns the current store state.
func (a *App) State() State {
	return a.Store.State()
}

// Root returns the bridge's root task, or nil before Start.
func (a *App) Root() *saga.Task {
	return a.root
}

// RunToken returns the journal run token, or "" without a journal.
func (a *App) RunToken() string {
	if a.recorder == nil {
		return ""
	}
	return a.recorder.Token()
}

// JournalErr returns the first journal append failure, if any.
func (a *App) JournalErr() error {
	if a.recorder == nil {
		return nil
	}
	return a.recorder.Err()
}

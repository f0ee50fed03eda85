package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/vigil/internal/app"
	"github.com/roach88/vigil/internal/codec"
	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/journal"
	"github.com/roach88/vigil/internal/saga"
	"github.com/roach88/vigil/internal/store"
	"github.com/roach88/vigil/internal/testutil"
	"github.com/roach88/vigil/internal/visibility"
)

// reportMessage is logged by the bridge's throttled report.
const reportMessage = "visibility report"

// Harness executes one scenario against a fresh application.
type Harness struct {
	app     *app.App
	signal  *visibility.Signal
	clock   *testutil.FakeClock
	journal *journal.Journal
	root    *saga.Task
	logs    *recordHandler
	result  *Result
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger also sends application logs to l. By default they are
// discarded after being recorded.
func WithLogger(l *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = l
	}
}

// Run executes a scenario and returns its result. Expectation and
// assertion failures are reported in the result, not as an error; an error
// means the scenario could not be executed.
//
// Each scenario runs against a fresh in-memory journal.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()

	initial := true
	if scenario.InitialVisible != nil {
		initial = *scenario.InitialVisible
	}

	var window time.Duration
	if scenario.ReportWindow != "" {
		window, err = time.ParseDuration(scenario.ReportWindow)
		if err != nil {
			return nil, fmt.Errorf("report_window: %w", err)
		}
	}

	var next slog.Handler = slog.NewTextHandler(io.Discard, nil)
	if o.logger != nil {
		next = o.logger.Handler()
	}
	logs := newRecordHandler(next)

	h := &Harness{
		signal:  visibility.NewSignal(initial),
		clock:   testutil.NewFakeClock(time.Time{}),
		journal: j,
		logs:    logs,
		result:  NewResult(),
	}

	a, err := app.New(ctx, h.signal,
		app.WithLogger(slog.New(logs)),
		app.WithJournal(j, scenario.Name),
		app.WithAutoWatch(scenario.AutoWatch),
		app.WithReportWindow(window),
		app.WithIDGenerator(saga.NewSequentialGenerator("task")),
		app.WithLimiterFactory(func(w time.Duration) saga.Limiter {
			return testutil.NewWindowLimiter(h.clock, w)
		}),
		app.WithReporter(func(t *saga.Task, err error) {
			h.result.Failures = append(h.result.Failures, fmt.Sprintf("%s: %v", t.Name(), err))
		}),
	)
	if err != nil {
		return nil, err
	}
	h.app = a
	a.Store.Subscribe(h.trace)

	h.root = a.Start()
	a.Scheduler.Flush()

	for i, step := range scenario.Steps {
		if err := h.executeStep(step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		a.Scheduler.Flush()
	}

	h.collect()
	h.checkExpect(scenario.Expect)
	for _, assertion := range scenario.Assertions {
		if err := evaluateAssertion(h.result.Trace, assertion); err != nil {
			h.result.AddError(err.Error())
		}
	}
	if err := h.checkReplay(ctx, scenario.Name); err != nil {
		return nil, err
	}

	// Release the root so no task goroutine outlives the run.
	a.Scheduler.Cancel(h.root)
	a.Scheduler.Flush()

	return h.result, nil
}

func (h *Harness) executeStep(step Step) error {
	switch {
	case step.Dispatch != "":
		var payload []byte
		if step.Payload != nil {
			var err error
			payload, err = json.Marshal(step.Payload)
			if err != nil {
				return fmt.Errorf("encode payload: %w", err)
			}
		}
		ev, err := event.Decode(event.Tag(step.Dispatch), payload)
		if err != nil {
			return err
		}
		h.app.Dispatch(ev)
	case step.Emit != nil:
		h.signal.Set(*step.Emit)
	case step.Cancel:
		h.app.Scheduler.Cancel(h.root)
	case step.StopSource:
		h.signal.Detach()
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
	default:
		return fmt.Errorf("empty step")
	}
	return nil
}

func (h *Harness) trace(d store.Dispatched[app.State]) {
	payload, err := codec.Marshal(d.Event)
	if err != nil {
		h.result.AddError(fmt.Sprintf("seq %d: encode %s: %v", d.Seq, d.Event.Tag(), err))
		return
	}
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Seq:     d.Seq,
		Tag:     string(d.Event.Tag()),
		Payload: payload,
		State:   d.State,
	})
}

func (h *Harness) collect() {
	h.result.Final = h.app.State()
	h.result.RootState = h.root.State().String()
	h.result.Listeners = h.signal.Listeners()
	h.result.Reports = h.logs.count(reportMessage)
}

func (h *Harness) checkExpect(e Expect) {
	r := h.result
	if e.States != nil {
		if got := r.Visibilities(); !equalBools(got, e.States) {
			r.AddError(fmt.Sprintf("states: expected %v, got %v", e.States, got))
		}
	}
	if e.Visible != nil && r.Final.Visibility.Visible != *e.Visible {
		r.AddError(fmt.Sprintf("visible: expected %v, got %v", *e.Visible, r.Final.Visibility.Visible))
	}
	if e.Pathname != "" && r.Final.Router.Pathname != e.Pathname {
		r.AddError(fmt.Sprintf("pathname: expected %q, got %q", e.Pathname, r.Final.Router.Pathname))
	}
	if e.Listeners != nil && r.Listeners != *e.Listeners {
		r.AddError(fmt.Sprintf("listeners: expected %d, got %d", *e.Listeners, r.Listeners))
	}
	if e.RootState != "" && r.RootState != e.RootState {
		r.AddError(fmt.Sprintf("root_state: expected %s, got %s", e.RootState, r.RootState))
	}
	if e.Reports != nil && r.Reports != *e.Reports {
		r.AddError(fmt.Sprintf("reports: expected %d, got %d", *e.Reports, r.Reports))
	}
	if e.Failures != nil && len(r.Failures) != *e.Failures {
		r.AddError(fmt.Sprintf("failures: expected %d, got %d (%v)", *e.Failures, len(r.Failures), r.Failures))
	}
}

// checkReplay re-reduces the journaled run and records any divergence.
func (h *Harness) checkReplay(ctx context.Context, token string) error {
	if err := h.app.JournalErr(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	res, err := journal.Replay(ctx, h.journal, token, app.Initial(), app.Reduce)
	if err != nil {
		return err
	}
	for _, d := range res.Divergences {
		h.result.AddError(fmt.Sprintf("replay diverged at seq %d (%s): recorded %s, replayed %s", d.Seq, d.Tag, d.Want, d.Got))
	}
	if res.Events != len(h.result.Trace) {
		h.result.AddError(fmt.Sprintf("replay: journaled %d events, traced %d", res.Events, len(h.result.Trace)))
	}
	return nil
}

func equalBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

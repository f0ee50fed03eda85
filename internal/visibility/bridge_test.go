package visibility

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/channel"
	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/saga"
	"github.com/roach88/vigil/internal/store"
	"github.com/roach88/vigil/internal/testutil"
)

type bridge struct {
	store   *store.Store[State]
	sched   *saga.Scheduler
	signal  *Signal
	root    *saga.Task
	reports []error
	puts    []bool
}

func newBridge(t *testing.T, schedOpts []saga.Option, opts ...Option) *bridge {
	t.Helper()
	b := &bridge{signal: NewSignal(true)}
	b.store = store.New(Initial(), Reduce)
	b.store.Subscribe(func(d store.Dispatched[State]) {
		if sv, ok := d.Event.(event.SetVisibility); ok {
			b.puts = append(b.puts, sv.Visible)
		}
	})
	base := []saga.Option{
		saga.WithIDGenerator(saga.NewSequentialGenerator("t")),
		saga.WithReporter(func(_ *saga.Task, err error) { b.reports = append(b.reports, err) }),
	}
	b.sched = saga.New(b.store, append(base, schedOpts...)...)
	b.root = b.sched.RunRoot("visibility", Root(b.signal, opts...))
	b.sched.Flush()
	return b
}

func (b *bridge) dispatch(ev event.Raw) {
	b.sched.Dispatch(ev)
	b.sched.Flush()
}

func TestBridge_IdleUntilStarted(t *testing.T) {
	b := newBridge(t, nil)

	assert.Equal(t, saga.Suspended, b.root.State())
	assert.Equal(t, 0, b.signal.Listeners())

	b.signal.Set(false)
	b.sched.Flush()
	assert.True(t, b.store.State().Visible)
}

func TestBridge_StartForwardsSignal(t *testing.T) {
	b := newBridge(t, nil)

	b.dispatch(event.StartWatchingVisibility{})
	require.Equal(t, 1, b.signal.Listeners())

	b.signal.Set(false)
	b.sched.Flush()
	assert.False(t, b.store.State().Visible)

	b.signal.Set(true)
	b.sched.Flush()
	assert.True(t, b.store.State().Visible)
	assert.Equal(t, []bool{false, true}, b.puts)
}

func TestBridge_BurstKeepsOrder(t *testing.T) {
	b := newBridge(t, nil)
	b.dispatch(event.StartWatchingVisibility{})

	b.signal.Set(false)
	b.signal.Set(true)
	b.signal.Set(false)
	b.sched.Flush()

	assert.Equal(t, []bool{false, true, false}, b.puts)
	assert.False(t, b.store.State().Visible)
}

func TestBridge_RestartReplacesSubscription(t *testing.T) {
	b := newBridge(t, nil)

	b.dispatch(event.StartWatchingVisibility{})
	b.dispatch(event.StartWatchingVisibility{})
	b.dispatch(event.StartWatchingVisibility{})

	assert.Equal(t, 1, b.signal.Listeners(), "previous subscriptions are released")
	assert.Len(t, b.root.Children(), 1)

	b.signal.Set(false)
	b.sched.Flush()
	assert.Equal(t, []bool{false}, b.puts, "exactly one live watcher forwards")
}

func TestBridge_StopReleasesSubscription(t *testing.T) {
	b := newBridge(t, nil)
	b.dispatch(event.StartWatchingVisibility{})
	require.Equal(t, 1, b.signal.Listeners())

	b.dispatch(event.StopWatchingVisibility{})

	assert.Equal(t, 0, b.signal.Listeners())
	b.signal.Set(false)
	b.sched.Flush()
	assert.True(t, b.store.State().Visible)
	assert.Equal(t, saga.Suspended, b.root.State(), "the registration stays for the next start")

	b.dispatch(event.StartWatchingVisibility{})
	assert.Equal(t, 1, b.signal.Listeners())
}

func TestBridge_CancelRootReleasesSubscription(t *testing.T) {
	b := newBridge(t, nil)
	b.dispatch(event.StartWatchingVisibility{})

	b.sched.Cancel(b.root)
	b.sched.Flush()

	assert.Equal(t, saga.Cancelled, b.root.State())
	assert.Equal(t, 0, b.signal.Listeners())
	assert.Equal(t, 0, b.store.Subscriptions())
	assert.Empty(t, b.reports)
}

func TestBridge_SourceUnavailable(t *testing.T) {
	b := newBridge(t, nil)
	b.signal.Detach()

	b.dispatch(event.StartWatchingVisibility{})

	assert.Equal(t, saga.Failed, b.root.State())
	require.Len(t, b.reports, 1, "failure surfaces once")
	assert.ErrorIs(t, b.reports[0], channel.ErrSourceUnavailable)
	assert.ErrorIs(t, b.reports[0], ErrDetached)
	assert.True(t, b.store.State().Visible, "state stays initial")
	assert.Empty(t, b.puts)
}

func TestBridge_ReportThrottled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	clock := testutil.NewFakeClock(time.Time{})
	limiters := saga.WithLimiterFactory(func(w time.Duration) saga.Limiter {
		return testutil.NewWindowLimiter(clock, w)
	})

	b := newBridge(t, []saga.Option{limiters}, WithLogger(logger), WithReportWindow(time.Second))
	b.dispatch(event.StartWatchingVisibility{})

	b.signal.Set(false)
	b.signal.Set(true)
	b.sched.Flush()
	assert.Equal(t, 1, strings.Count(buf.String(), "visibility report"))

	clock.Advance(time.Second)
	b.signal.Set(false)
	b.sched.Flush()
	assert.Equal(t, 2, strings.Count(buf.String(), "visibility report"))
}

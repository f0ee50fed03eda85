package saga

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/event"
)

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func TestScheduler_RootRunsOnFlush(t *testing.T) {
	f := newFixture(t)
	ran := false
	root := f.sched.RunRoot("root", func(task *Task) error {
		ran = true
		return nil
	})

	assert.Equal(t, "t-1", root.ID())
	assert.Equal(t, "root", root.Name())
	assert.False(t, ran, "RunRoot only queues the task")

	f.sched.Flush()

	assert.True(t, ran)
	assert.Equal(t, Completed, root.State())
	assert.NoError(t, root.Err())
	waitFor(t, root.Done(), "root done")
}

func TestScheduler_RootRegistersBeforeLaterDispatch(t *testing.T) {
	f := newFixture(t)
	var got event.SetVisibility
	root := f.sched.RunRoot("root", func(task *Task) error {
		got = Take(task, event.Of[event.SetVisibility]())
		return nil
	})
	f.sched.Dispatch(event.SetVisibility{Visible: false})
	f.sched.Flush()

	assert.Equal(t, Completed, root.State())
	assert.Equal(t, event.SetVisibility{Visible: false}, got)
}

func TestScheduler_DeferAfterFinishRunsAndLogs(t *testing.T) {
	var logs bytes.Buffer
	f := newFixture(t, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	root := f.sched.RunRoot("root", func(*Task) error { return nil })
	f.sched.Flush()
	require.Equal(t, Completed, root.State())

	ran := false
	root.Defer(func() error {
		ran = true
		return errors.New("late cleanup")
	})

	assert.True(t, ran)
	assert.Contains(t, logs.String(), "cleanup failed after task finished")
	assert.Contains(t, logs.String(), "late cleanup")
}

func TestScheduler_CancelSuspendedRunsCleanupsLIFO(t *testing.T) {
	f := newFixture(t)
	var order []string
	var sawCancelled bool
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error {
			order = append(order, "first")
			return nil
		})
		task.Defer(func() error {
			sawCancelled = task.Cancelled()
			order = append(order, "second")
			return nil
		})
		defer func() { order = append(order, "go-defer") }()

		Take(task, event.Of[event.SetVisibility]())
		order = append(order, "unreachable")
		return nil
	})
	f.sched.Flush()
	require.Equal(t, Suspended, root.State())
	require.Equal(t, 1, f.store.Subscriptions())

	f.sched.Cancel(root)
	f.sched.Flush()

	assert.Equal(t, Cancelled, root.State())
	assert.NoError(t, root.Err(), "cancellation is a state, not an error")
	assert.Equal(t, []string{"go-defer", "second", "first"}, order)
	assert.True(t, sawCancelled)
	assert.Equal(t, 0, f.store.Subscriptions(), "pending take is removed")
	assert.Empty(t, f.reports)
}

func TestScheduler_CancelTwiceRunsCleanupsOnce(t *testing.T) {
	f := newFixture(t)
	calls := 0
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error {
			calls++
			return nil
		})
		Take(task, event.Of[event.SetVisibility]())
		return nil
	})
	f.sched.Flush()

	f.sched.Cancel(root)
	f.sched.Cancel(root)
	f.sched.Flush()
	f.dispatch(event.SetVisibility{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, Cancelled, root.State())
}

func TestScheduler_CancelIsDepthFirst(t *testing.T) {
	f := newFixture(t)
	var order []string
	record := func(task *Task, name string) {
		task.Defer(func() error {
			order = append(order, name)
			return nil
		})
	}
	var child, grandchild *Task
	root := f.sched.RunRoot("root", func(task *Task) error {
		record(task, "root")
		child = Fork(task, "child", func(c *Task) error {
			record(c, "child")
			grandchild = Fork(c, "grandchild", func(g *Task) error {
				record(g, "grandchild")
				Take(g, event.Of[event.SetVisibility]())
				return nil
			})
			Take(c, event.Of[event.SetVisibility]())
			return nil
		})
		Take(task, event.Of[event.SetVisibility]())
		return nil
	})
	f.sched.Flush()
	require.Equal(t, 3, f.sched.Live())

	f.sched.Cancel(root)
	f.sched.Flush()

	assert.Equal(t, []string{"grandchild", "child", "root"}, order)
	assert.Equal(t, Cancelled, root.State())
	assert.Equal(t, Cancelled, child.State())
	assert.Equal(t, Cancelled, grandchild.State())
	assert.Equal(t, 0, f.sched.Live())
}

func TestScheduler_CancelUnstartedRoot(t *testing.T) {
	f := newFixture(t)
	ran := false
	root := f.sched.RunRoot("root", func(task *Task) error {
		ran = true
		return nil
	})

	f.sched.Cancel(root)
	f.sched.Flush()

	assert.False(t, ran)
	assert.Equal(t, Cancelled, root.State())
}

func TestScheduler_ParentWaitsForChildren(t *testing.T) {
	f := newFixture(t)
	var child *Task
	root := f.sched.RunRoot("root", func(task *Task) error {
		child = Fork(task, "child", func(c *Task) error {
			Take(c, event.Of[event.SetVisibility]())
			return nil
		})
		return nil
	})
	f.sched.Flush()

	assert.Equal(t, Suspended, root.State(), "body returned but a child is live")
	assert.Equal(t, []*Task{child}, root.Children())

	f.dispatch(event.SetVisibility{Visible: true})

	assert.Equal(t, Completed, child.State())
	assert.Equal(t, Completed, root.State())
	assert.Empty(t, root.Children())
}

func TestScheduler_ChildFailureFailsParent(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")
	siblingCleanup := false
	var sibling, failing *Task
	root := f.sched.RunRoot("root", func(task *Task) error {
		sibling = Fork(task, "sibling", func(s *Task) error {
			s.Defer(func() error {
				siblingCleanup = true
				return nil
			})
			Take(s, event.Of[event.SetVisibility]())
			return nil
		})
		failing = Fork(task, "failing", func(c *Task) error {
			Take(c, event.Of[event.StartWatchingVisibility]())
			return boom
		})
		Take(task, event.Of[event.StopWatchingVisibility]())
		return nil
	})
	f.sched.Flush()

	f.dispatch(event.StartWatchingVisibility{})

	assert.Equal(t, Failed, failing.State())
	assert.True(t, IsTaskFailed(failing.Err()))

	assert.Equal(t, Cancelled, sibling.State())
	assert.True(t, siblingCleanup)

	assert.Equal(t, Failed, root.State())
	assert.True(t, IsChildFailed(root.Err()))
	assert.ErrorIs(t, root.Err(), boom)

	require.Len(t, f.reports, 1, "failed root is reported once")
	assert.Same(t, root.Err(), f.reports[0])
	assert.Equal(t, 0, f.store.Subscriptions())
}

func TestScheduler_PanicFailsTask(t *testing.T) {
	f := newFixture(t)
	root := f.sched.RunRoot("root", func(task *Task) error {
		panic("kaboom")
	})
	f.sched.Flush()

	assert.Equal(t, Failed, root.State())
	require.True(t, IsTaskPanicked(root.Err()))

	var te *TaskError
	require.True(t, errors.As(root.Err(), &te))
	assert.Equal(t, "kaboom", te.Panic)
	assert.NotEmpty(t, te.Stack)
	assert.Len(t, f.reports, 1)
}

func TestScheduler_CleanupErrorJoinedWithBodyError(t *testing.T) {
	f := newFixture(t)
	bodyErr := errors.New("body")
	cleanupErr := errors.New("cleanup")
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error { return cleanupErr })
		return bodyErr
	})
	f.sched.Flush()

	assert.Equal(t, Failed, root.State())
	assert.ErrorIs(t, root.Err(), bodyErr)
	assert.ErrorIs(t, root.Err(), cleanupErr)
	assert.True(t, IsTaskFailed(root.Err()))
}

func TestScheduler_CleanupErrorAloneFails(t *testing.T) {
	f := newFixture(t)
	cleanupErr := errors.New("cleanup")
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error { return cleanupErr })
		return nil
	})
	f.sched.Flush()

	assert.Equal(t, Failed, root.State())
	assert.True(t, IsCleanupFailed(root.Err()))
	assert.ErrorIs(t, root.Err(), cleanupErr)
}

func TestScheduler_CleanupErrorDuringCancelStaysCancelled(t *testing.T) {
	f := newFixture(t)
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error { return errors.New("cleanup") })
		Take(task, event.Of[event.SetVisibility]())
		return nil
	})
	f.sched.Flush()

	f.sched.Cancel(root)
	f.sched.Flush()

	assert.Equal(t, Cancelled, root.State())
	assert.Empty(t, f.reports)
}

func TestScheduler_CleanupPanicDoesNotSkipOthers(t *testing.T) {
	f := newFixture(t)
	ranFirst := false
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error {
			ranFirst = true
			return nil
		})
		task.Defer(func() error { panic("cleanup panic") })
		return nil
	})
	f.sched.Flush()

	assert.True(t, ranFirst)
	assert.Equal(t, Failed, root.State())
	assert.True(t, IsCleanupFailed(root.Err()))
}

func TestScheduler_SuspendInCleanupFails(t *testing.T) {
	f := newFixture(t)
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error {
			Take(task, event.Of[event.SetVisibility]())
			return nil
		})
		return nil
	})
	f.sched.Flush()

	assert.Equal(t, Failed, root.State())
	assert.ErrorIs(t, root.Err(), ErrSuspendInCleanup)
	assert.Equal(t, 0, f.store.Subscriptions())
}

func TestScheduler_PatternMismatchIsFatal(t *testing.T) {
	f := newFixture(t)
	cleaned := false
	f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error {
			cleaned = true
			return nil
		})
		panic(&event.PatternMismatchError{Tag: event.TagSetVisibility, Want: "a", Got: "b"})
	})

	assert.Panics(t, f.sched.Flush)
	assert.True(t, cleaned, "cleanups run before the fatal panic escapes")
}

func TestScheduler_SelfCancel(t *testing.T) {
	f := newFixture(t)
	after := false
	root := f.sched.RunRoot("root", func(task *Task) error {
		Cancel(task, task)
		after = true
		return nil
	})
	f.sched.Flush()

	assert.False(t, after)
	assert.Equal(t, Cancelled, root.State())
}

func TestScheduler_ChildCancelsParent(t *testing.T) {
	f := newFixture(t)
	after := false
	var child *Task
	root := f.sched.RunRoot("root", func(task *Task) error {
		child = Fork(task, "child", func(c *Task) error {
			Take(c, event.Of[event.StartWatchingVisibility]())
			Cancel(c, c.Parent())
			after = true
			return nil
		})
		Take(task, event.Of[event.StopWatchingVisibility]())
		return nil
	})
	f.sched.Flush()

	f.dispatch(event.StartWatchingVisibility{})

	assert.False(t, after)
	assert.Equal(t, Cancelled, child.State())
	assert.Equal(t, Cancelled, root.State())
	assert.Equal(t, 0, f.sched.Live())
}

func TestScheduler_Arena(t *testing.T) {
	f := newFixture(t)
	root := f.sched.RunRoot("root", func(task *Task) error {
		Take(task, event.Of[event.SetVisibility]())
		return nil
	})
	f.sched.Flush()

	got, ok := f.sched.Lookup(root.ID())
	require.True(t, ok)
	assert.Same(t, root, got)
	assert.Equal(t, []*Task{root}, f.sched.Roots())

	f.dispatch(event.SetVisibility{})

	_, ok = f.sched.Lookup(root.ID())
	assert.False(t, ok, "finished tasks leave the arena")
	assert.Empty(t, f.sched.Roots())
}

func TestScheduler_Run_ContextCancel(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	var cleaned atomic.Bool
	root := f.sched.RunRoot("root", func(task *Task) error {
		task.Defer(func() error {
			cleaned.Store(true)
			return nil
		})
		close(started)
		Take(task, event.Of[event.SetVisibility]())
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.sched.Run(ctx) }()

	waitFor(t, started, "root start")
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, Cancelled, root.State())
	assert.True(t, cleaned.Load())
}

func TestScheduler_Run_ExternalDispatch(t *testing.T) {
	f := newFixture(t)
	root := f.sched.RunRoot("root", func(task *Task) error {
		Take(task, event.Of[event.SetVisibility]())
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- f.sched.Run(ctx) }()

	f.sched.Dispatch(event.SetVisibility{Visible: false})
	waitFor(t, root.Done(), "root done")
	assert.Equal(t, Completed, root.State())

	cancel()
	<-errCh
}

func TestScheduler_Stop(t *testing.T) {
	f := newFixture(t)
	root := f.sched.RunRoot("root", func(task *Task) error {
		Take(task, event.Of[event.SetVisibility]())
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- f.sched.Run(context.Background()) }()

	f.sched.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, root.State().Final())

	late := f.sched.RunRoot("late", func(task *Task) error { return nil })
	assert.Equal(t, Cancelled, late.State(), "roots started after Stop never run")
	waitFor(t, late.Done(), "late done")
}

func TestScheduler_DefaultReporterLogs(t *testing.T) {
	s := New(newFixture(t).store)
	root := s.RunRoot("root", func(task *Task) error { return errors.New("x") })

	assert.NotPanics(t, s.Flush)
	assert.Equal(t, Failed, root.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(0).String())
	assert.True(t, Cancelled.Final())
	assert.False(t, Suspended.Final())
}

package visibility

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/vigil/internal/channel"
	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/saga"
)

// Option configures the bridge.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	reportWindow time.Duration
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithReportWindow enables a visibility report logged at most once per
// window. Zero disables it.
func WithReportWindow(d time.Duration) Option {
	return func(o *options) {
		o.reportWindow = d
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Watch returns the body of one watch cycle: open a channel over src, put
// setVisibility for each value, and close the channel on exit. The body
// ends normally when the channel closes.
func Watch(src Source, logger *slog.Logger) saga.Body {
	if logger == nil {
		logger = slog.Default()
	}
	return func(t *saga.Task) error {
		ch, err := channel.Open[bool](src.Subscribe)
		if err != nil {
			return fmt.Errorf("open visibility channel: %w", err)
		}
		t.Defer(func() error {
			ch.Close()
			return nil
		})

		for {
			visible, err := saga.TakeChan(t, ch)
			if err != nil {
				if channel.IsClosed(err) {
					return nil
				}
				return err
			}
			logger.Info("visibility signal", "visible", visible)
			saga.Put(t, event.SetVisibility{Visible: visible})
		}
	}
}

// Root returns the bridge's root task body.
func Root(src Source, opts ...Option) saga.Body {
	o := buildOptions(opts)
	watch := Watch(src, o.logger)

	return func(t *saga.Task) error {
		cycle := event.AnyOf(
			event.Of[event.StartWatchingVisibility](),
			event.Of[event.StopWatchingVisibility](),
		)
		saga.TakeLatest(t, cycle, func(w *saga.Task, ev event.Event) error {
			if _, stop := ev.(event.StopWatchingVisibility); stop {
				o.logger.Info("visibility watch stopped")
				return nil
			}
			o.logger.Info("visibility watch started")
			return watch(w)
		})

		if o.reportWindow > 0 {
			saga.Throttle(t, o.reportWindow, event.Of[event.SetVisibility](), func(_ *saga.Task, ev event.SetVisibility) error {
				o.logger.Info("visibility report", "visible", ev.Visible, "window", o.reportWindow)
				return nil
			})
		}
		return nil
	}
}

package visibility

import (
	"log/slog"

	"github.com/roach88/vigil/internal/event"
	"github.com/roach88/vigil/internal/store"
)

// State is the visibility slice.
type State struct {
	Visible bool `json:"visible"`
}

// Initial returns the slice's initial state.
func Initial() State {
	return State{Visible: true}
}

// Reduce applies setVisibility; every other event leaves s unchanged.
func Reduce(s State, ev event.Raw) State {
	if sv, ok := ev.(event.SetVisibility); ok {
		s.Visible = sv.Visible
	}
	return s
}

// LogChanges returns a store listener that logs every setVisibility.
func LogChanges[S any](logger *slog.Logger) store.Listener[S] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(d store.Dispatched[S]) {
		if sv, ok := d.Event.(event.SetVisibility); ok {
			logger.Info("visibility changed", "visible", sv.Visible, "seq", d.Seq)
		}
	}
}

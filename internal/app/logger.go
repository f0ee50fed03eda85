package app

import (
	"log/slog"

	"github.com/roach88/vigil/internal/codec"
	"github.com/roach88/vigil/internal/store"
)

// DispatchLogger logs every dispatched event with its payload and the
// resulting state.
func DispatchLogger(logger *slog.Logger) store.Listener[State] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(d store.Dispatched[State]) {
		payload, err := codec.Marshal(d.Event)
		if err != nil {
			logger.Warn("action", "seq", d.Seq, "tag", d.Event.Tag(), "error", err)
			return
		}
		state, err := codec.Marshal(d.State)
		if err != nil {
			logger.Warn("action", "seq", d.Seq, "tag", d.Event.Tag(), "error", err)
			return
		}
		logger.Info("action",
			"seq", d.Seq,
			"tag", d.Event.Tag(),
			"payload", string(payload),
			"next_state", string(state),
		)
	}
}

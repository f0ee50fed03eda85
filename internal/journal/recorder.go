package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/vigil/internal/store"
)

// Recorder appends every dispatch of a store to a journal run.
type Recorder[S any] struct {
	journal *Journal
	token   string
	logger  *slog.Logger

	mu    sync.Mutex
	count int
	err   error
}

// NewRecorder begins run token in j and returns a recorder for it.
// startSeq is the store's seq before the first recorded dispatch.
func NewRecorder[S any](ctx context.Context, j *Journal, token string, startSeq int64, logger *slog.Logger) (*Recorder[S], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := j.BeginRun(ctx, Run{Token: token, StartedAtSeq: startSeq}); err != nil {
		return nil, err
	}
	return &Recorder[S]{journal: j, token: token, logger: logger}, nil
}

// Token returns the run token.
func (r *Recorder[S]) Token() string { return r.token }

// Listener returns the store listener that performs the appends.
// A failed append is logged and kept in Err; recording continues.
func (r *Recorder[S]) Listener() store.Listener[S] {
	return func(d store.Dispatched[S]) {
		entry, err := NewEntry(r.token, d.Seq, d.Event, d.State)
		if err == nil {
			err = r.journal.Append(context.Background(), entry)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.logger.Error("journal append failed", "run", r.token, "seq", d.Seq, "tag", d.Event.Tag(), "error", err)
			if r.err == nil {
				r.err = err
			}
			return
		}
		r.count++
	}
}

// Count returns the number of entries appended.
func (r *Recorder[S]) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Err returns the first append failure, if any.
func (r *Recorder[S]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

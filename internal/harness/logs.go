package harness

import (
	"context"
	"log/slog"
	"sync"
)

// recordHandler records log messages and forwards records to next.
type recordHandler struct {
	next slog.Handler

	mu       *sync.Mutex
	messages *[]string
}

func newRecordHandler(next slog.Handler) *recordHandler {
	return &recordHandler{next: next, mu: &sync.Mutex{}, messages: &[]string{}}
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	*h.messages = append(*h.messages, r.Message)
	h.mu.Unlock()
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *recordHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordHandler{next: h.next.WithAttrs(attrs), mu: h.mu, messages: h.messages}
}

func (h *recordHandler) WithGroup(name string) slog.Handler {
	return &recordHandler{next: h.next.WithGroup(name), mu: h.mu, messages: h.messages}
}

func (h *recordHandler) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range *h.messages {
		if m == msg {
			n++
		}
	}
	return n
}

package visibility

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Source is a push-based visibility signal.
// emit may be called from any goroutine.
type Source interface {
	Subscribe(emit func(visible bool)) (unsubscribe func(), err error)
}

// ErrDetached is returned by Signal.Subscribe after Detach.
var ErrDetached = errors.New("visibility: signal detached")

// Signal is an in-process visibility target. Set fires a change event to
// every listener, in subscription order.
//
// Thread-safety: Signal is safe for concurrent use.
type Signal struct {
	mu        sync.Mutex
	visible   bool
	detached  bool
	nextID    uint64
	order     []uint64
	listeners map[uint64]func(bool)
}

// NewSignal creates a signal with the given initial visibility.
func NewSignal(visible bool) *Signal {
	return &Signal{
		visible:   visible,
		listeners: make(map[uint64]func(bool)),
	}
}

// Subscribe adds a change listener.
func (s *Signal) Subscribe(emit func(bool)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detached {
		return nil, ErrDetached
	}
	s.nextID++
	id := s.nextID
	s.listeners[id] = emit
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}, nil
}

func (s *Signal) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
	for i, x := range s.order {
		if x == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// Set records the visibility and notifies listeners.
func (s *Signal) Set(visible bool) {
	s.mu.Lock()
	s.visible = visible
	fns := make([]func(bool), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}

// Visible returns the last value set.
func (s *Signal) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Listeners returns the number of live listeners.
func (s *Signal) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// Detach makes every later Subscribe fail. Existing listeners stay.
func (s *Signal) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}

// ParseVisibility parses visible|hidden|true|false|1|0, case-insensitive.
func ParseVisibility(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "visible", "true", "1":
		return true, nil
	case "hidden", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid visibility %q", text)
	}
}

// PumpLines reads one visibility value per line from r and sets sig.
// Blank lines are skipped and invalid lines are logged and skipped.
// Returns when r is exhausted or ctx is done.
func PumpLines(ctx context.Context, r io.Reader, sig *Signal, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		visible, err := ParseVisibility(text)
		if err != nil {
			logger.Warn("skipping input line", "line", line, "error", err)
			continue
		}
		sig.Set(visible)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read visibility input: %w", err)
	}
	return nil
}

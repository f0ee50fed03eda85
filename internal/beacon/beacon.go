// Package beacon exposes an HTTP source for visibility changes and events.
//
// Routes:
//
//	POST /visibility  {"visible": bool}              sets the visibility signal
//	POST /events      {"tag": "...", "payload": {}}  dispatches a registered event
//	GET  /state                                      current store state
//	GET  /healthz                                    liveness
package beacon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/vigil/internal/event"
)

const maxBodyBytes = 1 << 16

// Setter receives visibility changes. Implemented by *visibility.Signal.
type Setter interface {
	Set(visible bool)
}

// Dispatcher queues events. Implemented by *saga.Scheduler and *app.App.
type Dispatcher interface {
	Dispatch(ev event.Raw) bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithState exposes a state snapshot at GET /state.
func WithState(fn func() any) Option {
	return func(s *Server) {
		s.state = fn
	}
}

// Server is the HTTP beacon.
type Server struct {
	router     *chi.Mux
	visibility Setter
	dispatcher Dispatcher
	state      func() any
	logger     *slog.Logger
}

// New creates a beacon over a visibility setter and an event dispatcher.
func New(vis Setter, d Dispatcher, opts ...Option) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		visibility: vis,
		dispatcher: d,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/state", s.handleState)
	s.router.Post("/visibility", s.handleVisibility)
	s.router.Post("/events", s.handleEvent)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("beacon listening", "addr", l.Addr().String())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("beacon: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("beacon shutdown: %w", err)
		}
		s.logger.Info("beacon stopped")
		return nil
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("beacon listen: %w", err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("beacon request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

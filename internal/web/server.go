// Package web provides the HTTP status server for the garage-monitor daemon.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/garage-monitor/internal/logger"
	"github.com/sweeney/garage-monitor/internal/status"
)

const shutdownTimeout = 5 * time.Second

// Server serves the status page over HTTP. It only ever reads the store.
type Server struct {
	httpServer *http.Server
	store      *status.Store
	hostStats  func() (status.HostStats, error)
}

// Option configures a Server.
type Option func(*Server)

// WithHostStats adds machine uptime and memory, as reported by fn, to the
// index page and /status.json.
func WithHostStats(fn func() (status.HostStats, error)) Option {
	return func(s *Server) { s.hostStats = fn }
}

// New creates a Server that reads state from store. metrics may be nil,
// in which case /metrics is not routed.
func New(addr string, store *status.Store, metrics http.Handler, opts ...Option) *Server {
	s := &Server{store: store}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/door.json", s.handleDoorJSON)
	r.Get("/status.json", s.handleStatusJSON)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()
	logger.Infof(ctx, "http status server listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// snapshot reads the store and, when configured, the host stats.
// A failed host read leaves Host nil.
func (s *Server) snapshot(ctx context.Context) status.Snapshot {
	snap := s.store.Snapshot()
	if s.hostStats == nil {
		return snap
	}
	host, err := s.hostStats()
	if err != nil {
		logger.Debugf(ctx, "host stats: %v", err)
		return snap
	}
	snap.Host = &host
	return snap
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, s.snapshot(r.Context())); err != nil {
		logger.Debugf(r.Context(), "write index: %v", err)
	}
}

func (s *Server) handleDoorJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	write(r, w, status.FormatDoorJSON(s.store.Snapshot()))
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	write(r, w, status.FormatStatusEvent(s.snapshot(r.Context()), "", ""))
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	write(r, w, []byte("Not found"))
}

// write ignores client write failures; the peer has gone away.
func write(r *http.Request, w http.ResponseWriter, body []byte) {
	if _, err := w.Write(body); err != nil {
		logger.Debugf(r.Context(), "write %s: %v", r.URL.Path, err)
	}
}

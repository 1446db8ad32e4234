// Package server holds the HTTP server shell and its middleware.
package server

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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures New.
type Options struct {
	Port           int
	RequestTimeout time.Duration
	// ServiceName names the otelhttp server spans.
	ServiceName string
	Logger      *slog.Logger
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

// New builds a router with the standard middleware chain. Callers mount
// their routes on Router before calling Start.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := opts.ServiceName
	if name == "" {
		name = "mealgen"
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, name)
	})

	return &Server{
		Router: r,
		Port:   opts.Port,
		logger: logger,
		http: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens on the configured port and blocks until the server stops.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.Port, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.http.Shutdown(ctx)
}

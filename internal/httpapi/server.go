// Package httpapi exposes the regression engine over HTTP: starting runs,
// polling their status, replaying single cases and reading test logs.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/retracehq/retrace/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Listen is the address to bind, e.g. "127.0.0.1:8321".
	Listen string

	Store        store.Store
	Orchestrator Orchestrator

	// Metrics, when non-nil, is mounted at /metrics.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server serves the regression API.
type Server struct {
	listen       string
	store        store.Store
	orchestrator Orchestrator
	metrics      http.Handler
	logger       *slog.Logger

	// baseCtx is the lifetime context background runs are dispatched on.
	// Request contexts end when their handler returns; runs must not.
	baseCtx context.Context
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen:       cfg.Listen,
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		metrics:      cfg.Metrics,
		logger:       logger,
		baseCtx:      context.Background(),
	}
}

func (s *Server) runContext() context.Context {
	return s.baseCtx
}

// Routes builds the API router. Exposed separately so tests can drive the
// handlers without a listening socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)

		r.Get("/agents", s.handleListAgents)
		r.Post("/agents/{id}/regressions", s.handleStartRun)

		r.Get("/regressions", s.handleListRuns)
		r.Get("/regressions/{id}", s.handleGetRun)
		r.Get("/regressions/{id}/logs", s.handleListRunLogs)

		r.Post("/test-cases/{id}/executions", s.handleExecuteCase)

		r.Get("/logs/{id}", s.handleGetLog)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

// drainTimeout bounds how long shutdown waits for in-flight case units
// after the listener has closed.
const drainTimeout = 30 * time.Second

// Serve blocks until ctx is cancelled, then shuts the listener down
// gracefully. Background regression runs are dispatched on the same
// context, so shutdown stops them cooperatively between cases, and Serve
// does not return until every in-flight case unit has finished — the
// caller may close the store as soon as Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)
	s.baseCtx = egctx

	srv := &http.Server{
		Addr:    s.listen,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("http api listening", "addr", s.listen)

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down http api")
		return srv.Shutdown(shutdownCtx)
	})

	serveErr := eg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := s.orchestrator.Wait(drainCtx); err != nil {
		s.logger.Warn("runs still in flight at shutdown", "error", err)
	}

	return serveErr
}

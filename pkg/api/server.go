// Package api provides the HTTP submission surface: callers post one or
// more tasks per request, the server validates each and enqueues the
// valid ones. The unit of work stays exactly one task; batching is purely
// a submission convenience.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crawlerd/crawlerd/pkg/logging"
	"github.com/crawlerd/crawlerd/pkg/queue"
)

// Options configures the API server.
type Options struct {
	// Address to listen on (default ":8080").
	Address string

	Bus    queue.Bus
	Logger *logging.Logger

	// QueueName is the work queue tasks are submitted to.
	QueueName string
}

// Server is the crawlerd API server.
type Server struct {
	opts       Options
	logger     *logging.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer creates an API server.
func NewServer(opts Options) *Server {
	if opts.Address == "" {
		opts.Address = ":8080"
	}
	if opts.QueueName == "" {
		opts.QueueName = "tasks"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger,
	}

	router := chi.NewRouter()
	router.Use(s.requestLogMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/readyz", s.handleReadyz)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", s.handleSubmitTasks)
		r.Get("/tasks/stats", s.handleQueueStats)
	})
	s.router = router

	s.httpServer = &http.Server{
		Addr:              opts.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(logging.CategoryAPI, "api_started", "", map[string]any{
		"address": s.opts.Address,
	})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(logging.CategoryAPI, "http_request", "", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

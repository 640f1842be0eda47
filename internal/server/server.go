// Package server is the HTTP surface of the deduper: the GitHub webhook
// receiver, the crash report submission endpoint, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcdev/deduper/internal/submission"
)

// MaxWebhookBodyBytes bounds webhook payloads. GitHub caps deliveries at 25 MiB.
const MaxWebhookBodyBytes = 25 << 20

// MaxSubmissionBodyBytes bounds crash report submissions
const MaxSubmissionBodyBytes = 25 << 20

// WebhookVerifier authenticates a webhook delivery and returns its body
type WebhookVerifier interface {
	Verify(ctx context.Context, body []byte, signatureHeader string) (string, error)
}

// WebhookDispatcher accepts verified deliveries for asynchronous handling
type WebhookDispatcher interface {
	HandleWebhookEvent(eventType string, payload []byte) error
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the collaborators the HTTP handlers call into
type Deps struct {
	Verifier   WebhookVerifier
	Dispatcher WebhookDispatcher
	Sink       submission.Sink
	Health     Pinger
	Logger     *slog.Logger
}

// Config holds HTTP server settings
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Addr:              "0.0.0.0:8080",
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

// Server serves the deduper HTTP API
type Server struct {
	deps       Deps
	logger     *slog.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// New creates a server and registers its routes
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Verifier == nil {
		return nil, fmt.Errorf("webhook verifier is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("webhook dispatcher is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("submission sink is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	s := &Server{
		deps:   deps,
		logger: logger,
		router: chi.NewRouter(),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhook", s.handleWebhook)
		r.Post("/submit", s.handleSubmit)
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

// requestLogger logs one line per request through slog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

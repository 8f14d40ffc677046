// Package http provides the HTTP server and API surface for alchemist.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alchemist-av/alchemist/internal/config"
	"github.com/alchemist-av/alchemist/internal/http/middleware"
)

// Scan walks the whole library, so one request per window per client is
// plenty. Backups are similarly expensive.
const (
	scanRateLimit    = 1
	scanRateWindow   = 5 * time.Second
	backupRateLimit  = 10
	backupRateWindow = time.Minute
)

// Server is the HTTP front of the engine: the versioned JSON API, the SSE
// event stream, Prometheus metrics and the health endpoint.
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router, middleware chain and OpenAPI scaffolding.
// Handlers are registered by the caller through API() and Router().
func NewServer(cfg config.ServerConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RateLimitRoutes(scanRateLimit, scanRateWindow, "POST /api/v1/scan"))
	router.Use(middleware.RateLimitRoutes(backupRateLimit, backupRateWindow, "POST /api/v1/backups"))
	router.Use(middleware.SkipCompressionFor(chimiddleware.Compress(5)))

	router.Handle("/metrics", promhttp.Handler())

	humaConfig := huma.DefaultConfig("Alchemist API", version)
	humaConfig.Info.Description = "Autonomous media transcoding engine"

	api := humachi.New(router, humaConfig)

	return &Server{
		config: cfg,
		router: router,
		api:    api,
		logger: logger,
	}
}

// API returns the huma API for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the chi router for raw routes (SSE) that huma cannot carry.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the listener and blocks until the server is shut down.
func (s *Server) Start() error {
	addr := s.config.Address()

	// The SSE handler clears its own write deadline, so WriteTimeout only
	// bounds regular responses.
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and shuts it down when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

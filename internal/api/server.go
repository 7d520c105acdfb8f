// Package api exposes the control surface for the campaign engine: start,
// stop, manual dispatch, status, and engagement stats.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"outreach/internal/config"
	"outreach/internal/models"
)

// Control is the scheduler surface the API drives.
type Control interface {
	Start(c *models.Campaign) error
	Stop() error
	RunNow() error
	Status() (*models.Campaign, time.Time)
}

// StatsProvider answers engagement stat queries.
type StatsProvider interface {
	Aggregate(dates []string, all bool) (models.StatsSummary, error)
}

// Server is the HTTP control API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	control    Control
	stats      StatsProvider
	metrics    http.Handler
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new control API server. metricsHandler may be nil when
// metrics are disabled.
func NewServer(control Control, stats StatsProvider, metricsHandler http.Handler, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		control:   control,
		stats:     stats,
		metrics:   metricsHandler,
		config:    cfg,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check and metrics, no auth required
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Post("/campaign/start", s.handleStart)
		r.Post("/campaign/stop", s.handleStop)
		r.Post("/campaign/send-now", s.handleSendNow)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting control API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down control API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

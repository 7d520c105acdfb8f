// Package app wires the campaign engine together and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach/internal/api"
	"outreach/internal/config"
	"outreach/internal/db"
	"outreach/internal/dispatch"
	"outreach/internal/dkim"
	"outreach/internal/mailconn"
	"outreach/internal/metrics"
	"outreach/internal/region"
	"outreach/internal/replies"
	"outreach/internal/repository"
	"outreach/internal/scheduler"
	"outreach/internal/stats"
	"outreach/internal/template"
	"outreach/internal/tracker"
)

// App is the campaign engine process: scheduler, dispatcher, reply
// correlator, and the control API.
type App struct {
	config    *config.Config
	database  *db.DB
	conn      *mailconn.Manager
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	logger    *slog.Logger
}

// New creates the application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	contacts := repository.NewContactRepository(database.DB)
	tracking := repository.NewTrackingRepository(database.DB)
	campaigns := repository.NewCampaignRepository(database.DB)

	regions, err := region.Load(cfg.Regions.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load regions: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var signer *dkim.Signer
	if cfg.DKIM.Enabled {
		signer, err = dkim.NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return nil, fmt.Errorf("failed to load DKIM key: %w", err)
		}
		logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
	}

	conn := mailconn.New(cfg.SMTP, cfg.IMAP, logger, m)
	trackerClient := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.Timeout)
	templates := template.NewStore(cfg.Templates.Dir, logger)

	engine := dispatch.NewEngine(dispatch.Config{
		SenderEmail: cfg.SMTP.Username,
		SenderName:  cfg.SMTP.SenderName,
		Subject:     cfg.SMTP.Subject,
		TrackerURL:  cfg.Tracker.BaseURL,
		SendDelay:   cfg.Scheduler.SendDelay,
	}, conn, contacts, tracking, trackerClient, templates, signer, logger, m)

	correlator := replies.NewCorrelator(conn, trackerClient, logger, m)
	aggregator := stats.NewAggregator(tracking, trackerClient, logger)

	sched := scheduler.New(campaigns, engine, correlator, conn, tracking, regions, scheduler.Intervals{
		Tick:        cfg.Scheduler.TickInterval,
		ReplyScan:   cfg.Scheduler.ReplyScanInterval,
		Maintenance: cfg.Scheduler.MaintenanceInterval,
	}, logger)

	var metricsHandler http.Handler
	if m != nil {
		metricsHandler = m.Handler()
	}
	apiServer := api.NewServer(sched, aggregator, metricsHandler, &cfg.API, logger)

	return &App{
		config:    cfg,
		database:  database,
		conn:      conn,
		scheduler: sched,
		apiServer: apiServer,
		logger:    logger,
	}, nil
}

// Run starts all components and waits for shutdown.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting campaign engine",
		"api_addr", a.config.API.ListenAddr,
		"smtp_host", a.config.SMTP.Host,
		"imap_host", a.config.IMAP.Host,
		"tracker", a.config.Tracker.BaseURL,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A campaign left running by the previous process picks up where it
	// stopped; last_run_date prevents a repeated daily batch.
	if err := a.scheduler.Restore(); err != nil {
		return fmt.Errorf("failed to restore campaign state: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops all components. The scheduler is halted, not stopped: a
// running campaign stays running in the store and resumes on next start.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a.scheduler.Halt()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	a.conn.DiscardSMTP()
	a.conn.DiscardIMAP()

	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

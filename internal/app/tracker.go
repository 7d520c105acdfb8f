package app

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"outreach/internal/config"
	"outreach/internal/db"
	"outreach/internal/repository"
	"outreach/internal/tracker"
)

// RunTracker runs the standalone tracking service: pixel endpoint, send
// registration, reply reports, and the counter-backed stats fallback. It
// shares the engine's database but keeps its own counter store.
func RunTracker(ctx context.Context, cfg *config.Config) error {
	logger := SetupLogger(cfg.Logging)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	counters, err := tracker.OpenCounterStore(cfg.Tracker.CounterPath)
	if err != nil {
		return fmt.Errorf("failed to open counter store: %w", err)
	}
	defer counters.Close()

	tracking := repository.NewTrackingRepository(database.DB)
	server := tracker.NewServer(tracking, counters, logger, nil)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(cfg.Tracker.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("tracker server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

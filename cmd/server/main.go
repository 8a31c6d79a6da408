package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neohiodeals/dealfeed/internal/ai"
	"github.com/neohiodeals/dealfeed/internal/config"
	"github.com/neohiodeals/dealfeed/internal/ingest"
	"github.com/neohiodeals/dealfeed/internal/scheduler"
	"github.com/neohiodeals/dealfeed/internal/scrapers"
	"github.com/neohiodeals/dealfeed/internal/server"
	"github.com/neohiodeals/dealfeed/internal/storage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := storage.SeedStores(db); err != nil {
		// The API works without the stores table being seeded.
		slog.Warn("Store seeding failed", "error", err)
	}
	store := storage.New(db)

	adapters := []ingest.Adapter{
		scrapers.NewWalmart(cfg.WalmartStoreID),
		scrapers.NewGiantEagle(cfg.GiantEagleStoreCode, cfg.GiantEagleStoreLabel),
		scrapers.NewAldi(cfg.AldiServicePoint, cfg.AldiServiceType, cfg.AldiHeadful),
		scrapers.NewDollarGeneral(cfg.FlippAccessToken, cfg.FlippPublicationID),
		scrapers.NewMarcs(),
	}

	runnerOpts := []ingest.RunnerOption{
		ingest.WithStoreTracker(store),
		ingest.WithAdapterCap(cfg.AdapterDealCap),
		ingest.WithAdapterTimeout(cfg.AdapterTimeout),
	}
	gemini, err := ai.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		slog.Warn("Gemini unavailable, skipping category enrichment", "error", err)
	} else if gemini != nil {
		runnerOpts = append(runnerOpts, ingest.WithCategorizer(gemini))
	}
	runner := ingest.NewRunner(store, adapters, runnerOpts...)

	jobs := scheduler.New(runner, store, cfg.RetentionWindow(), cfg.RunTimeout)
	if err := jobs.Start(cfg.ScrapeCron, cfg.CleanupCron); err != nil {
		return err
	}

	api := server.New(store, runner, server.Config{
		Retention:  cfg.RetentionWindow(),
		RunTimeout: cfg.RunTimeout,
	})
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	// Let in-flight cron jobs drain, bounded by the same deadline.
	select {
	case <-jobs.Stop().Done():
	case <-shutdownCtx.Done():
	}
	return nil
}

// Package scheduler drives the two recurring jobs: the daily scrape run
// and the retention sweep that trims old deals.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/neohiodeals/dealfeed/internal/ingest"
)

type RunTrigger interface {
	RunAll(ctx context.Context) (ingest.Report, error)
}

type CleanupStore interface {
	DeleteDealsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron       *cron.Cron
	runner     RunTrigger
	store      CleanupStore
	retention  time.Duration
	runTimeout time.Duration
}

func New(runner RunTrigger, store CleanupStore, retention, runTimeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		runner:     runner,
		store:      store,
		retention:  retention,
		runTimeout: runTimeout,
	}
}

// Start registers both jobs and begins the cron loop. Specs use the
// standard five-field format.
func (s *Scheduler) Start(scrapeSpec, cleanupSpec string) error {
	if _, err := s.cron.AddFunc(scrapeSpec, s.runScrape); err != nil {
		return fmt.Errorf("invalid scrape schedule %q: %w", scrapeSpec, err)
	}
	if _, err := s.cron.AddFunc(cleanupSpec, s.runCleanup); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", cleanupSpec, err)
	}

	s.cron.Start()
	slog.Info("Scheduler started", "scrape", scrapeSpec, "cleanup", cleanupSpec)
	return nil
}

// Stop halts scheduling and returns a context that closes once running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runScrape() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduled ingestion run panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	report, err := s.runner.RunAll(ctx)
	if err != nil {
		slog.Error("Scheduled ingestion run failed", "error", err)
		return
	}
	slog.Info("Scheduled ingestion run finished",
		"status", report.Status, "applied", report.Batch.Applied, "dropped", report.Dropped)
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	deleted, err := s.store.DeleteDealsOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}
	slog.Info("Retention sweep finished", "deleted", deleted, "cutoff", cutoff)
}

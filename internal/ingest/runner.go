// Package ingest orchestrates the scraping pipeline: it runs every source
// adapter, normalizes their output and submits the combined batch to the
// deal store in one operation.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neohiodeals/dealfeed/internal/models"
	"github.com/neohiodeals/dealfeed/internal/normalizer"
	"github.com/neohiodeals/dealfeed/internal/storage"
)

// Status classifies the outcome of a run. A run with no records is a soft
// failure, distinct from a storage-level hard failure.
type Status string

const (
	StatusOK      Status = "ok"
	StatusNoDeals Status = "no_deals"
	StatusFailed  Status = "failed"
)

// Report is what a run hands back to the scheduler or trigger endpoint.
type Report struct {
	Status     Status              `json:"status"`
	PerAdapter map[string]int      `json:"per_adapter"`
	Dropped    int                 `json:"dropped"`
	Batch      storage.BatchResult `json:"batch"`
}

// Submitter is the upsert engine boundary.
type Submitter interface {
	SubmitBatch(ctx context.Context, records []models.Record) (storage.BatchResult, error)
}

// StoreTracker stamps last_scraped for retailers that contributed records.
type StoreTracker interface {
	MarkStoreScraped(ctx context.Context, slug string, at time.Time) error
}

// Categorizer fills in a category for records whose source supplied none.
type Categorizer interface {
	Categorize(ctx context.Context, productName, description string) (string, error)
}

type Runner struct {
	adapters []Adapter
	norm     *normalizer.Normalizer
	store    Submitter
	tracker  StoreTracker // optional
	enricher Categorizer  // optional

	perAdapterCap  int
	adapterTimeout time.Duration
}

type RunnerOption func(*Runner)

func WithStoreTracker(t StoreTracker) RunnerOption {
	return func(r *Runner) { r.tracker = t }
}

func WithCategorizer(c Categorizer) RunnerOption {
	return func(r *Runner) { r.enricher = c }
}

func WithAdapterCap(n int) RunnerOption {
	return func(r *Runner) { r.perAdapterCap = n }
}

func WithAdapterTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.adapterTimeout = d }
}

func NewRunner(store Submitter, adapters []Adapter, opts ...RunnerOption) *Runner {
	r := &Runner{
		adapters:       adapters,
		norm:           normalizer.New(),
		store:          store,
		perAdapterCap:  50,
		adapterTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunAll executes every adapter, concatenates their normalized output and
// submits the whole batch. Adapter failures are contained: a broken or
// empty source contributes nothing but never stops its siblings. The error
// return is non-nil only for a hard (submission) failure.
func (r *Runner) RunAll(ctx context.Context) (Report, error) {
	report := Report{Status: StatusOK, PerAdapter: make(map[string]int)}

	contributions := make([][]models.Record, len(r.adapters))
	dropped := make([]int, len(r.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range r.adapters {
		g.Go(func() error {
			batch := r.fetchOne(gctx, adapter)
			opts := normalizer.Options{StoreLabel: adapter.Name()}
			if p, ok := adapter.(interface{ NamePrefix() string }); ok {
				opts.NamePrefix = p.NamePrefix()
			}
			records, stats := r.norm.Normalize(opts, batch)
			if r.perAdapterCap > 0 && len(records) > r.perAdapterCap {
				slog.Info("Capping adapter contribution",
					"adapter", adapter.Name(), "found", len(records), "cap", r.perAdapterCap)
				records = records[:r.perAdapterCap]
			}
			contributions[i] = records
			dropped[i] = stats.Dropped
			return nil
		})
	}
	// Goroutines only write their own slot and never return an error.
	_ = g.Wait()

	var combined []models.Record
	for i, adapter := range r.adapters {
		report.PerAdapter[adapter.Name()] = len(contributions[i])
		report.Dropped += dropped[i]
		combined = append(combined, contributions[i]...)
	}

	if len(combined) == 0 {
		slog.Warn("No deals found by any adapter")
		report.Status = StatusNoDeals
		return report, nil
	}

	r.enrich(ctx, combined)

	result, err := r.store.SubmitBatch(ctx, combined)
	report.Batch = result
	if err != nil {
		report.Status = StatusFailed
		return report, fmt.Errorf("batch submission failed: %w", err)
	}

	r.markScraped(ctx, report.PerAdapter)

	slog.Info("Ingestion run finished",
		"total", len(combined),
		"applied", result.Applied,
		"dropped", report.Dropped)
	return report, nil
}

// fetchOne runs a single adapter with its own timeout, converting every
// failure mode, panics included, into an empty batch.
func (r *Runner) fetchOne(ctx context.Context, adapter Adapter) (batch []models.Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Adapter panicked", "adapter", adapter.Name(), "panic", rec)
			batch = nil
		}
	}()

	actx, cancel := context.WithTimeout(ctx, r.adapterTimeout)
	defer cancel()

	batch, err := adapter.Fetch(actx)
	if err != nil {
		slog.Warn("Adapter failed, continuing without it", "adapter", adapter.Name(), "error", err)
		return nil
	}
	slog.Info("Adapter finished", "adapter", adapter.Name(), "candidates", len(batch))
	return batch
}

func (r *Runner) enrich(ctx context.Context, records []models.Record) {
	if r.enricher == nil {
		return
	}
	for i := range records {
		if records[i].Category != "" {
			continue
		}
		category, err := r.enricher.Categorize(ctx, records[i].ProductName, records[i].Description)
		if err != nil {
			slog.Warn("Category enrichment failed", "product", records[i].ProductName, "error", err)
			continue
		}
		records[i].Category = category
	}
}

func (r *Runner) markScraped(ctx context.Context, perAdapter map[string]int) {
	if r.tracker == nil {
		return
	}
	now := time.Now().UTC()
	for _, adapter := range r.adapters {
		if perAdapter[adapter.Name()] == 0 {
			continue
		}
		if err := r.tracker.MarkStoreScraped(ctx, adapter.Slug(), now); err != nil {
			slog.Warn("Failed to stamp last_scraped", "store", adapter.Slug(), "error", err)
		}
	}
}

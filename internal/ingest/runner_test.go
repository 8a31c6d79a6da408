package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neohiodeals/dealfeed/internal/models"
	"github.com/neohiodeals/dealfeed/internal/storage"
)

// --- Mock implementations ---

type mockAdapter struct {
	name  string
	slug  string
	batch []models.Candidate
	err   error
	panic bool
}

func (m *mockAdapter) Name() string { return m.name }
func (m *mockAdapter) Slug() string { return m.slug }
func (m *mockAdapter) Fetch(_ context.Context) ([]models.Candidate, error) {
	if m.panic {
		panic("selector drift")
	}
	return m.batch, m.err
}

type mockSubmitter struct {
	mu        sync.Mutex
	submitted []models.Record
	err       error
}

func (m *mockSubmitter) SubmitBatch(_ context.Context, records []models.Record) (storage.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return storage.BatchResult{Attempted: len(records)}, m.err
	}
	m.submitted = append(m.submitted, records...)
	return storage.BatchResult{Attempted: len(records), Applied: len(records)}, nil
}

type mockTracker struct {
	mu    sync.Mutex
	slugs []string
}

func (m *mockTracker) MarkStoreScraped(_ context.Context, slug string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slugs = append(m.slugs, slug)
	return nil
}

func candidates(n int, store string) []models.Candidate {
	out := make([]models.Candidate, n)
	for i := range out {
		out[i] = models.Candidate{"product_name": fmt.Sprintf("%s item %d", store, i)}
	}
	return out
}

// --- Tests ---

func TestRunAll_CombinesAdapters(t *testing.T) {
	sub := &mockSubmitter{}
	tracker := &mockTracker{}
	r := NewRunner(sub, []Adapter{
		&mockAdapter{name: "Walmart", slug: "walmart", batch: candidates(3, "Walmart")},
		&mockAdapter{name: "Marc's", slug: "marcs", batch: candidates(2, "Marc's")},
	}, WithStoreTracker(tracker))

	report, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if report.Status != StatusOK {
		t.Errorf("Status = %s, want ok", report.Status)
	}
	if len(sub.submitted) != 5 {
		t.Errorf("submitted %d records, want 5", len(sub.submitted))
	}
	if report.PerAdapter["Walmart"] != 3 || report.PerAdapter["Marc's"] != 2 {
		t.Errorf("PerAdapter = %v", report.PerAdapter)
	}
	if report.Batch.Applied != 5 {
		t.Errorf("Applied = %d, want 5", report.Batch.Applied)
	}
	if len(tracker.slugs) != 2 {
		t.Errorf("expected both stores stamped, got %v", tracker.slugs)
	}
}

func TestRunAll_FailOpenAdapters(t *testing.T) {
	sub := &mockSubmitter{}
	r := NewRunner(sub, []Adapter{
		&mockAdapter{name: "Walmart", slug: "walmart", err: errors.New("blocked: 418")},
		&mockAdapter{name: "Giant Eagle", slug: "giant-eagle", batch: candidates(2, "GE")},
		&mockAdapter{name: "Aldi", slug: "aldi", batch: candidates(1, "Aldi")},
	})

	report, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("one broken adapter must not fail the run: %v", err)
	}
	if report.Status != StatusOK {
		t.Errorf("Status = %s, want ok", report.Status)
	}
	if len(sub.submitted) != 3 {
		t.Errorf("submitted %d records, want 3 from the healthy adapters", len(sub.submitted))
	}
	if report.PerAdapter["Walmart"] != 0 {
		t.Errorf("broken adapter should contribute 0, got %d", report.PerAdapter["Walmart"])
	}
}

func TestRunAll_PanickingAdapterContained(t *testing.T) {
	sub := &mockSubmitter{}
	r := NewRunner(sub, []Adapter{
		&mockAdapter{name: "Walmart", slug: "walmart", panic: true},
		&mockAdapter{name: "Marc's", slug: "marcs", batch: candidates(1, "Marc's")},
	})

	report, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if report.Status != StatusOK || len(sub.submitted) != 1 {
		t.Errorf("panicking adapter should be contained; status=%s submitted=%d", report.Status, len(sub.submitted))
	}
}

func TestRunAll_EmptyBatchSoftFailure(t *testing.T) {
	sub := &mockSubmitter{}
	tracker := &mockTracker{}
	r := NewRunner(sub, []Adapter{
		&mockAdapter{name: "Walmart", slug: "walmart"},
		&mockAdapter{name: "Aldi", slug: "aldi", err: errors.New("timeout")},
	}, WithStoreTracker(tracker))

	report, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("empty run must not be a hard failure: %v", err)
	}
	if report.Status != StatusNoDeals {
		t.Errorf("Status = %s, want no_deals", report.Status)
	}
	if report.Batch.Attempted != 0 {
		t.Errorf("Attempted = %d, want 0", report.Batch.Attempted)
	}
	if len(sub.submitted) != 0 {
		t.Errorf("nothing should be submitted, got %d", len(sub.submitted))
	}
	if len(tracker.slugs) != 0 {
		t.Errorf("no store should be stamped on an empty run, got %v", tracker.slugs)
	}
}

func TestRunAll_SubmissionHardFailure(t *testing.T) {
	sub := &mockSubmitter{err: errors.New("connection refused")}
	r := NewRunner(sub, []Adapter{
		&mockAdapter{name: "Marc's", slug: "marcs", batch: candidates(2, "Marc's")},
	})

	report, err := r.RunAll(context.Background())
	if err == nil {
		t.Fatal("expected hard failure when submission fails")
	}
	if report.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", report.Status)
	}
}

func TestRunAll_CapsAdapterContribution(t *testing.T) {
	sub := &mockSubmitter{}
	r := NewRunner(sub, []Adapter{
		&mockAdapter{name: "Walmart", slug: "walmart", batch: candidates(80, "Walmart")},
	}, WithAdapterCap(50))

	report, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if report.PerAdapter["Walmart"] != 50 {
		t.Errorf("PerAdapter = %d, want capped 50", report.PerAdapter["Walmart"])
	}
	if len(sub.submitted) != 50 {
		t.Errorf("submitted %d, want 50", len(sub.submitted))
	}
}

type staticCategorizer struct{ category string }

func (s *staticCategorizer) Categorize(_ context.Context, _, _ string) (string, error) {
	return s.category, nil
}

func TestRunAll_EnrichesMissingCategories(t *testing.T) {
	sub := &mockSubmitter{}
	r := NewRunner(sub, []Adapter{
		&mockAdapter{name: "Aldi", slug: "aldi", batch: []models.Candidate{
			{"product_name": "Oat Milk"},
			{"product_name": "Candles", "category": "Home & Decor"},
		}},
	}, WithCategorizer(&staticCategorizer{category: "Grocery"}))

	_, err := r.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if sub.submitted[0].Category != "Grocery" {
		t.Errorf("missing category not enriched: %q", sub.submitted[0].Category)
	}
	if sub.submitted[1].Category != "Home & Decor" {
		t.Errorf("existing category overwritten: %q", sub.submitted[1].Category)
	}
}

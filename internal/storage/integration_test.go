//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/neohiodeals/dealfeed/internal/models"
)

// Integration tests that run the upsert engine and the query surface
// against a real SQL database (in-memory SQLite, one per test). The ILIKE
// text filters are Postgres-only and stay out of these tests.

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Deal{}, &models.Store{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	return New(db)
}

func TestIntegration_SubmitBatchIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	first := models.Record{
		StoreName:   "Marc's",
		ProductName: "Eckrich Smoked Sausage",
		Price:       "$2.99",
		Category:    "Meat",
	}
	if _, err := c.SubmitBatch(ctx, []models.Record{first}); err != nil {
		t.Fatalf("first SubmitBatch() error = %v", err)
	}

	// Same identity again, with a new price and no category.
	second := models.Record{
		StoreName:   "Marc's",
		ProductName: "Eckrich Smoked Sausage",
		Price:       "$2.49",
	}
	result, err := c.SubmitBatch(ctx, []models.Record{second})
	if err != nil {
		t.Fatalf("second SubmitBatch() error = %v", err)
	}
	if result.Applied != 1 {
		t.Errorf("Applied = %d, want 1", result.Applied)
	}

	deals, err := c.ActiveDeals(ctx, DealFilter{})
	if err != nil {
		t.Fatalf("ActiveDeals() error = %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("got %d rows for one identity, want 1", len(deals))
	}
	if deals[0].Price != "$2.49" {
		t.Errorf("Price = %q, want the updated price", deals[0].Price)
	}
	if deals[0].Category != "Meat" {
		t.Errorf("Category = %q; an absent field must not wipe stored data", deals[0].Category)
	}
}

func TestIntegration_SubmitBatchIsolatesFailingRecords(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	batch := []models.Record{
		{StoreName: "Aldi", ProductName: "Oat Milk", Price: "$2.19"},
		{StoreName: "Aldi", ProductName: ""}, // unusable merge key
		{StoreName: "Walmart", ProductName: "Air Fryer", Price: "$149.99"},
	}

	result, err := c.SubmitBatch(ctx, batch)
	if err != nil {
		t.Fatalf("a bad record must not fail the batch: %v", err)
	}
	if result.Attempted != 3 || result.Applied != 2 {
		t.Errorf("result = %+v, want Attempted=3 Applied=2", result)
	}

	deals, err := c.ActiveDeals(ctx, DealFilter{})
	if err != nil {
		t.Fatalf("ActiveDeals() error = %v", err)
	}
	if len(deals) != 2 {
		t.Errorf("got %d rows, want the 2 good records committed", len(deals))
	}
}

func TestIntegration_ActiveFilterBoundary(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	now := time.Now().UTC()
	expired := now.Add(-time.Hour)
	upcoming := now.Add(time.Hour)

	batch := []models.Record{
		{StoreName: "Aldi", ProductName: "Expired Candle", ValidUntil: &expired},
		{StoreName: "Aldi", ProductName: "Current Wreath", ValidUntil: &upcoming},
		{StoreName: "Aldi", ProductName: "Open-Ended Cheese"},
	}
	if _, err := c.SubmitBatch(ctx, batch); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}

	deals, err := c.ActiveDeals(ctx, DealFilter{})
	if err != nil {
		t.Fatalf("ActiveDeals() error = %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("got %d active deals, want 2 (expired excluded, open-ended included)", len(deals))
	}
	for _, deal := range deals {
		if deal.ProductName == "Expired Candle" {
			t.Error("deal past its validity window must not be listed")
		}
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalDeals != 3 || stats.ActiveDeals != 2 {
		t.Errorf("stats = %+v, want TotalDeals=3 ActiveDeals=2", stats)
	}
}

func TestIntegration_DeleteDealsOlderThan(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	batch := []models.Record{
		{StoreName: "Marc's", ProductName: "Eggs"},
		{StoreName: "Marc's", ProductName: "Bread"},
	}
	if _, err := c.SubmitBatch(ctx, batch); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}

	// A cutoff in the past touches nothing.
	deleted, err := c.DeleteDealsOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteDealsOlderThan() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0 for a past cutoff", deleted)
	}

	// A cutoff in the future sweeps everything just written.
	deleted, err = c.DeleteDealsOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteDealsOlderThan() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	deals, err := c.ActiveDeals(ctx, DealFilter{})
	if err != nil {
		t.Fatalf("ActiveDeals() error = %v", err)
	}
	if len(deals) != 0 {
		t.Errorf("got %d rows after sweep, want 0", len(deals))
	}
}

func TestIntegration_MarkStoreScraped(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.db.Create(&models.Store{Name: "aldi", DisplayName: "Aldi", IsActive: true}).Error; err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := c.MarkStoreScraped(ctx, "aldi", at); err != nil {
		t.Fatalf("MarkStoreScraped() error = %v", err)
	}

	// Unknown slugs are a no-op, not an error.
	if err := c.MarkStoreScraped(ctx, "no-such-store", at); err != nil {
		t.Errorf("unknown slug should be a no-op, got %v", err)
	}

	var store models.Store
	if err := c.db.Where("name = ?", "aldi").First(&store).Error; err != nil {
		t.Fatalf("failed to read store back: %v", err)
	}
	if store.LastScraped == nil || !store.LastScraped.Equal(at) {
		t.Errorf("LastScraped = %v, want %v", store.LastScraped, at)
	}
}

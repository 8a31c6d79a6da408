package normalizer

import (
	"strings"
	"testing"
	"time"

	"github.com/neohiodeals/dealfeed/internal/models"
)

func TestNormalize_StoreFallbacks(t *testing.T) {
	n := New()

	tests := []struct {
		name  string
		opts  Options
		cand  models.Candidate
		want  string
	}{
		{
			name: "Explicit store wins",
			opts: Options{StoreLabel: "Marc's"},
			cand: models.Candidate{"store_name": "Giant Eagle", "product_name": "Milk"},
			want: "Giant Eagle",
		},
		{
			name: "Adapter label fallback",
			opts: Options{StoreLabel: "Marc's"},
			cand: models.Candidate{"product_name": "Milk"},
			want: "Marc's",
		},
		{
			name: "Unknown store fallback",
			opts: Options{},
			cand: models.Candidate{"product_name": "Milk"},
			want: "Unknown Store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, stats := n.Normalize(tt.opts, []models.Candidate{tt.cand})
			if stats.Dropped != 0 || len(recs) != 1 {
				t.Fatalf("expected 1 record, got %d (dropped %d)", len(recs), stats.Dropped)
			}
			if recs[0].StoreName != tt.want {
				t.Errorf("StoreName = %q, want %q", recs[0].StoreName, tt.want)
			}
		})
	}
}

func TestNormalize_NameFallbackChain(t *testing.T) {
	n := New()
	opts := Options{StoreLabel: "Aldi"}

	// Description is preferred over title, per the observed fallback order.
	recs, _ := n.Normalize(opts, []models.Candidate{
		{"description": "Buy one get one free", "title": "Weekly Special"},
	})
	if len(recs) != 1 {
		t.Fatal("expected 1 record")
	}
	if recs[0].ProductName != "Buy one get one free" {
		t.Errorf("ProductName = %q, want description fallback", recs[0].ProductName)
	}

	// Title when there is no description.
	recs, _ = n.Normalize(opts, []models.Candidate{
		{"title": "Weekly Special"},
	})
	if recs[0].ProductName != "Weekly Special" {
		t.Errorf("ProductName = %q, want title fallback", recs[0].ProductName)
	}
}

func TestNormalize_PlaceholderName(t *testing.T) {
	n := New()
	batch := []models.Candidate{
		{"product_name": "First"},
		{"product_name": "Second"},
		{"price": "$1.99"}, // no name sources at position 3
	}

	recs, stats := n.Normalize(Options{StoreLabel: "Marc's", NamePrefix: "Marc's offer"}, batch)
	if stats.Dropped != 0 || len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d (dropped %d)", len(recs), stats.Dropped)
	}
	if recs[2].ProductName != "Marc's offer #3" {
		t.Errorf("ProductName = %q, want %q", recs[2].ProductName, "Marc's offer #3")
	}
}

func TestNormalize_DefaultPrefix(t *testing.T) {
	n := New()
	recs, _ := n.Normalize(Options{StoreLabel: "Walmart"}, []models.Candidate{
		{"price": "$5.00"},
	})
	if len(recs) != 1 {
		t.Fatal("expected 1 record")
	}
	if recs[0].ProductName != "Walmart deal #1" {
		t.Errorf("ProductName = %q, want %q", recs[0].ProductName, "Walmart deal #1")
	}
}

func TestNormalize_TruncatesLongNames(t *testing.T) {
	n := New()
	long := strings.Repeat("x", 600)

	recs, stats := n.Normalize(Options{StoreLabel: "Walmart"}, []models.Candidate{
		{"product_name": long},
	})
	if stats.Dropped != 0 || len(recs) != 1 {
		t.Fatalf("record should be truncated, not dropped (got %d, dropped %d)", len(recs), stats.Dropped)
	}
	if got := recs[0].ProductName; got != strings.Repeat("x", 500) {
		t.Errorf("ProductName length = %d, want exactly 500", len(got))
	}
}

func TestNormalize_StripsUnknownFields(t *testing.T) {
	n := New()
	recs, _ := n.Normalize(Options{StoreLabel: "Walmart"}, []models.Candidate{
		{
			"product_name": "TV",
			"price":        "$149.99",
			"rating":       4.5,
			"reviews":      1234,
			"badges":       []string{"Clearance"},
		},
	})
	if len(recs) != 1 {
		t.Fatal("expected 1 record")
	}
	// The canonical record type has no slot for the extras; spot-check the
	// recognized ones survived.
	if recs[0].ProductName != "TV" || recs[0].Price != "$149.99" {
		t.Errorf("recognized fields mangled: %+v", recs[0])
	}
}

func TestNormalize_DateCoercion(t *testing.T) {
	n := New()
	until := time.Date(2025, 11, 9, 0, 0, 0, 0, time.UTC)

	recs, _ := n.Normalize(Options{StoreLabel: "Marc's"}, []models.Candidate{
		{"product_name": "Eggs", "valid_until": "2025-11-09"},
		{"product_name": "Bread", "valid_until": "whenever"},
		{"product_name": "Butter", "valid_until": until},
	})
	if len(recs) != 3 {
		t.Fatal("expected 3 records")
	}
	if recs[0].ValidUntil == nil || !recs[0].ValidUntil.Equal(until) {
		t.Errorf("string date not coerced: %v", recs[0].ValidUntil)
	}
	if recs[1].ValidUntil != nil {
		t.Errorf("unparseable date should be absent, got %v", recs[1].ValidUntil)
	}
	if recs[2].ValidUntil == nil || !recs[2].ValidUntil.Equal(until) {
		t.Errorf("time.Time value not passed through: %v", recs[2].ValidUntil)
	}
}

func TestNormalize_DropsEmptyCandidates(t *testing.T) {
	n := New()
	recs, stats := n.Normalize(Options{StoreLabel: "Aldi"}, []models.Candidate{
		{},
		{"sku": "12345", "snap_eligible": true}, // only unrecognized keys
		{"product_name": "Kept"},
	})
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}
	if stats.Emitted != 1 {
		t.Errorf("Emitted = %d, want 1", stats.Emitted)
	}
}

func TestNormalize_PlaceholderPositionCountsWholeBatch(t *testing.T) {
	n := New()
	// Dropped candidates still occupy their position in the batch.
	recs, _ := n.Normalize(Options{StoreLabel: "Aldi"}, []models.Candidate{
		{"product_name": "First"},
		{},
		{"price": "$2.49"},
	})
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[1].ProductName != "Aldi deal #3" {
		t.Errorf("ProductName = %q, want %q", recs[1].ProductName, "Aldi deal #3")
	}
}

// Package normalizer converts the loosely-typed candidate records emitted
// by source adapters into canonical deal records. Every record it emits has
// a non-empty store name and product name; everything else is optional.
package normalizer

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/neohiodeals/dealfeed/internal/models"
	"github.com/neohiodeals/dealfeed/internal/util"
)

// Recognized candidate keys. Anything else on a candidate is stripped
// before the record reaches the upsert engine.
const (
	KeyStoreName     = "store_name"
	KeyProductName   = "product_name"
	KeyTitle         = "title"
	KeyDescription   = "description"
	KeyPrice         = "price"
	KeyOriginalPrice = "original_price"
	KeyDiscount      = "discount"
	KeyCategory      = "category"
	KeyImageURL      = "image_url"
	KeyDealURL       = "deal_url"
	KeyValidFrom     = "valid_from"
	KeyValidUntil    = "valid_until"
)

const unknownStore = "Unknown Store"

// Options carry the adapter-supplied fallbacks applied when a candidate is
// missing its identity fields.
type Options struct {
	// StoreLabel is used when the candidate has no store_name.
	StoreLabel string
	// NamePrefix seeds the generated placeholder name. Defaults to
	// "<StoreLabel> deal" when empty.
	NamePrefix string
}

// Stats reports what happened to a batch during normalization.
type Stats struct {
	Emitted int
	Dropped int
}

type Normalizer struct {
	validate *validator.Validate
}

func New() *Normalizer {
	return &Normalizer{validate: validator.New()}
}

// Normalize maps a batch of candidates into canonical records, applying the
// fallback, clamping and coercion rules. Candidates that carry no
// recognized fields at all are dropped and counted, never surfaced as an
// error.
func (n *Normalizer) Normalize(opts Options, batch []models.Candidate) ([]models.Record, Stats) {
	prefix := opts.NamePrefix
	if prefix == "" {
		label := opts.StoreLabel
		if label == "" {
			label = unknownStore
		}
		prefix = label + " deal"
	}

	records := make([]models.Record, 0, len(batch))
	var stats Stats
	for i, cand := range batch {
		rec, ok := n.normalizeOne(opts, prefix, i+1, cand)
		if !ok {
			stats.Dropped++
			continue
		}
		records = append(records, rec)
	}
	stats.Emitted = len(records)
	if stats.Dropped > 0 {
		slog.Warn("Dropped unusable candidates during normalization", "store", opts.StoreLabel, "dropped", stats.Dropped)
	}
	return records, stats
}

func (n *Normalizer) normalizeOne(opts Options, prefix string, position int, cand models.Candidate) (models.Record, bool) {
	if !hasRecognizedField(cand) {
		return models.Record{}, false
	}

	rec := models.Record{
		StoreName:     stringField(cand, KeyStoreName),
		ProductName:   stringField(cand, KeyProductName),
		Price:         stringField(cand, KeyPrice),
		OriginalPrice: stringField(cand, KeyOriginalPrice),
		Discount:      stringField(cand, KeyDiscount),
		Category:      stringField(cand, KeyCategory),
		Description:   stringField(cand, KeyDescription),
		ImageURL:      stringField(cand, KeyImageURL),
		DealURL:       stringField(cand, KeyDealURL),
		ValidFrom:     timeField(cand, KeyValidFrom),
		ValidUntil:    timeField(cand, KeyValidUntil),
	}

	if rec.StoreName == "" {
		rec.StoreName = opts.StoreLabel
	}
	if rec.StoreName == "" {
		rec.StoreName = unknownStore
	}

	if rec.ProductName == "" {
		rec.ProductName = rec.Description
	}
	if rec.ProductName == "" {
		rec.ProductName = stringField(cand, KeyTitle)
	}
	if rec.ProductName == "" {
		rec.ProductName = fmt.Sprintf("%s #%d", prefix, position)
	}
	rec.ProductName = clampName(rec.ProductName)

	if err := n.validate.Struct(rec); err != nil {
		slog.Warn("Dropping candidate that failed validation", "store", rec.StoreName, "error", err)
		return models.Record{}, false
	}
	return rec, true
}

// hasRecognizedField reports whether the candidate carries at least one
// recognized, non-empty field. A candidate with none has no identity and no
// payload worth persisting.
func hasRecognizedField(cand models.Candidate) bool {
	for _, key := range []string{
		KeyStoreName, KeyProductName, KeyTitle, KeyDescription,
		KeyPrice, KeyOriginalPrice, KeyDiscount, KeyCategory,
		KeyImageURL, KeyDealURL, KeyValidFrom, KeyValidUntil,
	} {
		v, ok := cand[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return true
	}
	return false
}

func stringField(cand models.Candidate, key string) string {
	v, ok := cand[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// timeField coerces a date-like candidate value. Adapters may supply a
// time.Time directly or a string in any of the source formats; a value that
// cannot be parsed becomes absent rather than failing the record.
func timeField(cand models.Candidate, key string) *time.Time {
	v, ok := cand[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	case string:
		return util.ParseTimestamp(t)
	}
	return nil
}

func clampName(name string) string {
	runes := []rune(name)
	if len(runes) <= models.MaxProductNameLen {
		return name
	}
	return string(runes[:models.MaxProductNameLen])
}

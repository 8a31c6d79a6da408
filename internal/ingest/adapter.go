package ingest

import (
	"context"

	"github.com/neohiodeals/dealfeed/internal/models"
)

// Adapter retrieves raw candidate records from one external retailer
// source. Implementations are read-only against the source, carry their own
// configuration (store codes, tokens) and must bound every external call
// with the supplied context.
//
// An adapter reports failure by returning an error; the runner converts
// that into an empty contribution so one retailer's breakage never aborts
// the run.
type Adapter interface {
	// Name is the display label stamped onto deals from this source.
	Name() string
	// Slug is the stores table key used for last_scraped bookkeeping.
	Slug() string
	// Fetch returns a finite batch of candidate records.
	Fetch(ctx context.Context) ([]models.Candidate, error)
}

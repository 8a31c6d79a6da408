package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/neohiodeals/dealfeed/internal/models"
)

// Marc's publishes its digital coupons as a public Inmar JSON document.
const marcsOffersURL = "https://www.marcs.com/Flipp/inmar_offers.json"

const marcsDateLayout = "2006-01-02"

type Marcs struct {
	client *resty.Client
	url    string
}

func NewMarcs() *Marcs {
	return &Marcs{
		client: newClient(15 * time.Second),
		url:    marcsOffersURL,
	}
}

func (m *Marcs) Name() string { return "Marc's" }
func (m *Marcs) Slug() string { return "marcs" }

// NamePrefix labels offers that carry no usable description of their own.
func (m *Marcs) NamePrefix() string { return "Marc's offer" }

func (m *Marcs) Fetch(ctx context.Context) ([]models.Candidate, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json, text/plain, */*").
		SetHeader("Referer", "https://www.marcs.com/weeklyad").
		Get(m.url)
	if err != nil {
		return nil, fmt.Errorf("marc's request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("marc's returned status %d", resp.StatusCode())
	}

	offers, err := parseMarcsOffers(resp.Body())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []models.Candidate
	for _, offer := range offers {
		if !offer.activeAt(now) {
			continue
		}
		out = append(out, offer.candidate(now))
	}
	return out, nil
}

type marcsOffer struct {
	ShortDescription string `json:"ShortDescription"`
	OfferDescription string `json:"OfferDescription"`
	ValueText        string `json:"ValueText"`
	Category         string `json:"Category"`
	ImageURL         string `json:"ImageURL"`
	AvailabilityLink string `json:"AvailabilityLink"`
	ActiveDate       string `json:"ActiveDate"`
	ClipStartDate    string `json:"ClipStartDate"`
	ExpirationDate   string `json:"ExpirationDate"`
	ClipEndDate      string `json:"ClipEndDate"`
}

// marcsOfferList absorbs the feed's XML-converted quirk: "Offer" is an
// array when there are many offers and a bare object when there is one.
type marcsOfferList []marcsOffer

func (l *marcsOfferList) UnmarshalJSON(data []byte) error {
	var many []marcsOffer
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one marcsOffer
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = marcsOfferList{one}
	return nil
}

func parseMarcsOffers(body []byte) ([]marcsOffer, error) {
	var payload struct {
		Offers struct {
			Offer marcsOfferList `json:"Offer"`
		} `json:"Offers"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode marc's offers: %w", err)
	}
	return payload.Offers.Offer, nil
}

func (o marcsOffer) startDate() string {
	if o.ActiveDate != "" {
		return o.ActiveDate
	}
	return o.ClipStartDate
}

func (o marcsOffer) endDate() string {
	if o.ExpirationDate != "" {
		return o.ExpirationDate
	}
	return o.ClipEndDate
}

// activeAt reports whether the offer window covers the given day.
// Unparseable bounds don't exclude an offer.
func (o marcsOffer) activeAt(now time.Time) bool {
	today := now.Truncate(24 * time.Hour)
	if start, err := time.Parse(marcsDateLayout, o.startDate()); err == nil && today.Before(start) {
		return false
	}
	if end, err := time.Parse(marcsDateLayout, o.endDate()); err == nil && today.After(end) {
		return false
	}
	return true
}

func (o marcsOffer) candidate(now time.Time) models.Candidate {
	c := models.Candidate{
		"store_name": "Marc's",
	}

	// Coupon-style offers have no price, the value text is the deal.
	name := o.ShortDescription
	if name == "" {
		name = o.OfferDescription
	}
	if name == "" {
		name = o.ValueText
	}
	if name != "" {
		c["product_name"] = name
	}

	if o.ValueText != "" {
		c["discount"] = o.ValueText
	}
	if o.OfferDescription != "" {
		c["description"] = o.OfferDescription
	}
	if o.Category != "" {
		c["category"] = o.Category
	}
	if o.ImageURL != "" {
		c["image_url"] = o.ImageURL
	}
	if o.AvailabilityLink != "" {
		c["deal_url"] = o.AvailabilityLink
	}

	if from := o.startDate(); from != "" {
		c["valid_from"] = from
	} else {
		c["valid_from"] = now
	}
	if until := o.endDate(); until != "" {
		c["valid_until"] = until
	} else {
		c["valid_until"] = now.Add(7 * 24 * time.Hour)
	}
	return c
}

package scrapers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/neohiodeals/dealfeed/internal/models"
)

const (
	flippBase       = "https://dam.flippenterprise.net"
	dgWeeklyAdsURL  = "https://www.dollargeneral.com/deals/weekly-ads"
	dgFallbackPubID = "7519222"
)

var dgPublicationPattern = regexp.MustCompile(`publication/(\d{6,})`)

// DollarGeneral reads the weekly ad through Flipp's flyerkit API. The
// publication ID rotates weekly; a configured ID wins, otherwise we try to
// discover the current one from the weekly-ads page and fall back to the
// last known-good ID.
type DollarGeneral struct {
	client        *resty.Client
	token         string
	publicationID string
}

func NewDollarGeneral(token, publicationID string) *DollarGeneral {
	return &DollarGeneral{
		client:        newClient(12 * time.Second),
		token:         token,
		publicationID: publicationID,
	}
}

func (d *DollarGeneral) Name() string { return "Dollar General" }
func (d *DollarGeneral) Slug() string { return "dollar-general" }

func (d *DollarGeneral) Fetch(ctx context.Context) ([]models.Candidate, error) {
	pubID := d.publicationID
	if pubID == "" {
		if discovered := d.discoverPublicationID(ctx); discovered != "" {
			pubID = discovered
		} else {
			pubID = dgFallbackPubID
			slog.Info("Dollar General publication discovery failed, using fallback", "publication", pubID)
		}
	}

	products, err := d.fetchPublicationProducts(ctx, pubID)
	if err != nil {
		return nil, err
	}

	var out []models.Candidate
	for _, p := range products {
		if c := flippCandidate(p); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// discoverPublicationID scrapes the weekly-ads page for a flyerkit
// publication reference. The ID shows up in embedded script URLs.
func (d *DollarGeneral) discoverPublicationID(ctx context.Context) string {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		Get(dgWeeklyAdsURL)
	if err != nil || resp.StatusCode() != 200 {
		return ""
	}

	if m := dgPublicationPattern.FindSubmatch(resp.Body()); m != nil {
		return string(m[1])
	}

	// The reference sometimes hides in script or iframe attributes rather
	// than raw text.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("script[src], iframe[src], a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"src", "href"} {
			if v, ok := s.Attr(attr); ok {
				if m := dgPublicationPattern.FindStringSubmatch(v); m != nil {
					found = m[1]
					return false
				}
			}
		}
		return true
	})
	return found
}

type flippProduct struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	ImageURL      string   `json:"image_url"`
	Brand         string   `json:"brand"`
	SaleStory     string   `json:"sale_story"`
	PriceText     string   `json:"price_text"`
	PrePriceText  string   `json:"pre_price_text"`
	PostPriceText string   `json:"post_price_text"`
	ValidFrom     string   `json:"valid_from"`
	ValidTo       string   `json:"valid_to"`
	ItemWebURL    string   `json:"item_web_url"`
	Categories    []string `json:"categories"`
}

func (d *DollarGeneral) fetchPublicationProducts(ctx context.Context, pubID string) ([]flippProduct, error) {
	url := fmt.Sprintf("%s/flyerkit/publication/%s/products", flippBase, pubID)
	params := map[string]string{
		"display_type": "all",
		"locale":       "en",
		"access_token": d.token,
	}

	body, status, err := d.getFlipp(ctx, url, params)
	if err != nil {
		return nil, err
	}
	if status == 422 {
		// The API occasionally rejects the locale parameter; retry bare.
		delete(params, "locale")
		body, status, err = d.getFlipp(ctx, url, params)
		if err != nil {
			return nil, err
		}
	}
	if status != 200 {
		return nil, fmt.Errorf("flipp returned status %d for publication %s", status, pubID)
	}

	return parseFlippProducts(body)
}

func (d *DollarGeneral) getFlipp(ctx context.Context, url string, params map[string]string) ([]byte, int, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json, text/plain, */*").
		SetHeader("Origin", "https://www.dollargeneral.com").
		SetHeader("Referer", dgWeeklyAdsURL).
		SetQueryParams(params).
		Get(url)
	if err != nil {
		return nil, 0, fmt.Errorf("flipp request failed: %w", err)
	}
	return resp.Body(), resp.StatusCode(), nil
}

// parseFlippProducts accepts both response shapes the API serves: a bare
// product array or an object wrapping one.
func parseFlippProducts(body []byte) ([]flippProduct, error) {
	var direct []flippProduct
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}

	var wrapped struct {
		Products []flippProduct `json:"products"`
		Items    []flippProduct `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode flipp response: %w", err)
	}
	if len(wrapped.Products) > 0 {
		return wrapped.Products, nil
	}
	return wrapped.Items, nil
}

func flippCandidate(p flippProduct) models.Candidate {
	if p.Name == "" {
		return nil
	}

	c := models.Candidate{
		"store_name":   "Dollar General",
		"product_name": p.Name,
	}
	if price := flippPriceLine(p); price != "" {
		c["price"] = price
	}
	if p.SaleStory != "" {
		c["discount"] = p.SaleStory
	}
	if len(p.Categories) > 0 {
		c["category"] = p.Categories[len(p.Categories)-1]
	}
	if p.Description != "" {
		c["description"] = p.Description
	}
	if p.ImageURL != "" {
		c["image_url"] = p.ImageURL
	}
	if p.ItemWebURL != "" {
		c["deal_url"] = p.ItemWebURL
	}
	if p.ValidFrom != "" {
		c["valid_from"] = p.ValidFrom
	}
	if p.ValidTo != "" {
		c["valid_until"] = p.ValidTo
	}
	return c
}

// flippPriceLine stitches the flyer's price fragments ("2 for", "$5.00",
// "with coupon") into one display string.
func flippPriceLine(p flippProduct) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.PrePriceText, p.PriceText, p.PostPriceText} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

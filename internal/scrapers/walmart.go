package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/neohiodeals/dealfeed/internal/models"
)

// Walmart renders its homepage "Flash Deals" carousel from a GraphQL
// endpoint. We replay the captured below-the-fold query and harvest every
// product module in the response.
const walmartGraphQLURL = "https://www.walmart.com/orchestra/home/graphql/HomePageWebRedesignBtf/" +
	"97471cea0bb256c5caed77587c60c5c863e4c0c493eae4ce1051d86a6ad6a7de"

type Walmart struct {
	client  *resty.Client
	storeID string
}

func NewWalmart(storeID string) *Walmart {
	return &Walmart{
		client:  newClient(20 * time.Second),
		storeID: storeID,
	}
}

func (w *Walmart) Name() string { return "Walmart" }
func (w *Walmart) Slug() string { return "walmart" }

func (w *Walmart) Fetch(ctx context.Context) ([]models.Candidate, error) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"accept":                  "application/json",
			"accept-language":         "en-US",
			"content-type":            "application/json",
			"isbtf":                   "true",
			"origin":                  "https://www.walmart.com",
			"referer":                 "https://www.walmart.com/",
			"tenant-id":               "elh9ie",
			"x-apollo-operation-name": "HomePageWebRedesignBtf",
			"x-o-bu":                  "WALMART-US",
			"x-o-gql-query":           "query HomePageWebRedesignBtf",
			"x-o-mart":                "B2C",
			"x-o-platform":            "rweb",
			"x-o-segment":             "oaoh",
		}).
		SetCookie(&http.Cookie{Name: "assortmentStoreId", Value: w.storeID, Domain: ".walmart.com", Path: "/"}).
		SetCookie(&http.Cookie{Name: "hasLocData", Value: "1", Domain: ".walmart.com", Path: "/"}).
		SetBody(map[string]any{"variables": walmartVariables()}).
		Post(walmartGraphQLURL)
	if err != nil {
		return nil, fmt.Errorf("walmart request failed: %w", err)
	}

	if walmartBlocked(resp.StatusCode(), resp.Body()) {
		return nil, fmt.Errorf("walmart blocked or throttled the request (status %d)", resp.StatusCode())
	}
	if !strings.Contains(strings.ToLower(resp.Header().Get("Content-Type")), "application/json") {
		return nil, fmt.Errorf("walmart returned unexpected content-type %q", resp.Header().Get("Content-Type"))
	}

	return parseWalmartDeals(resp.Body())
}

// walmartVariables mirrors the browser's BTF query variables, trimmed to
// the fields the endpoint requires, with the Flash Deals carousel named in
// lazyModules.
func walmartVariables() map[string]any {
	return map[string]any{
		"tenant":                "WM_GLASS",
		"isBTF":                 true,
		"contentLayoutVersion":  "v2",
		"pageType":              "GlassHomePageDesktopV1",
		"postProcessingVersion": 2,
		"p13NCallType":          "BTF",
		"selectedIntent":        "NONE",
		"p13n": map[string]any{
			"selectedIntent": "NONE",
			"userClientInfo": map[string]any{"deviceType": "desktop"},
		},
		"userClientInfo": map[string]any{"deviceType": "desktop"},
		"userReqInfo":    map[string]any{"isMoreOptionsTileEnabled": true},
		"lazyModules": []map[string]any{
			{
				"name":    "Flash Deals Item Carousel Module - 12.12.24 ",
				"type":    "ItemCarousel",
				"version": 2,
				"status":  "published",
			},
		},
	}
}

// walmartBlocked recognizes the anti-bot wall: throttling status codes or
// a challenge page instead of JSON.
func walmartBlocked(status int, body []byte) bool {
	switch status {
	case 403, 418, 429:
		return true
	}
	t := strings.ToLower(string(body))
	return strings.Contains(t, "access denied") ||
		strings.Contains(t, "captcha") ||
		strings.Contains(t, "hang on- you're so close")
}

type walmartProduct struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	PriceInfo struct {
		CurrentPrice struct {
			Price        float64 `json:"price"`
			PriceDisplay string  `json:"priceDisplay"`
			PriceString  string  `json:"priceString"`
		} `json:"currentPrice"`
		WasPrice struct {
			PriceString string `json:"priceString"`
		} `json:"wasPrice"`
		SavingsAmount struct {
			PriceString string `json:"priceString"`
		} `json:"savingsAmount"`
		Savings struct {
			PriceString string `json:"priceString"`
		} `json:"savings"`
	} `json:"priceInfo"`
	AverageRating   float64 `json:"averageRating"`
	NumberOfReviews int     `json:"numberOfReviews"`
	Badges          struct {
		Flags []struct {
			Text string `json:"text"`
		} `json:"flags"`
		GroupsV2 []struct {
			Members []struct {
				Content []struct {
					Value string `json:"value"`
				} `json:"content"`
			} `json:"members"`
		} `json:"groupsV2"`
	} `json:"badges"`
	ImageInfo struct {
		ThumbnailURL string `json:"thumbnailUrl"`
	} `json:"imageInfo"`
	CanonicalURL string `json:"canonicalUrl"`
	ProductURL   string `json:"productUrl"`
	URL          string `json:"url"`
}

type walmartResponse struct {
	Data struct {
		ContentLayout struct {
			Modules []struct {
				Configs struct {
					ProductsConfig struct {
						Products []walmartProduct `json:"products"`
					} `json:"productsConfig"`
				} `json:"configs"`
				Products []walmartProduct `json:"products"`
			} `json:"modules"`
		} `json:"contentLayout"`
	} `json:"data"`
}

// parseWalmartDeals walks contentLayout.modules and converts every priced
// product into a candidate. Items without a name or any price signal are
// skipped.
func parseWalmartDeals(body []byte) ([]models.Candidate, error) {
	var payload walmartResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode walmart response: %w", err)
	}

	var out []models.Candidate
	for _, mod := range payload.Data.ContentLayout.Modules {
		products := mod.Configs.ProductsConfig.Products
		if len(products) == 0 {
			products = mod.Products
		}
		for _, p := range products {
			if c := walmartCandidate(p); c != nil {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func walmartCandidate(p walmartProduct) models.Candidate {
	name := p.Name
	if name == "" {
		name = p.Title
	}
	if name == "" {
		return nil
	}

	current := p.PriceInfo.CurrentPrice
	base := current.PriceDisplay
	if base == "" {
		base = current.PriceString
	}
	if base == "" {
		if current.Price == 0 {
			return nil
		}
		base = fmt.Sprintf("$%.2f", current.Price)
	}

	save := p.PriceInfo.SavingsAmount.PriceString
	if save == "" {
		save = p.PriceInfo.Savings.PriceString
	}
	display := base
	if save != "" {
		display = fmt.Sprintf("%s (%s)", base, save)
	}

	c := models.Candidate{
		"store_name":   "Walmart",
		"product_name": name,
		"price":        display,
	}
	if was := p.PriceInfo.WasPrice.PriceString; was != "" {
		c["original_price"] = was
	}
	if p.ImageInfo.ThumbnailURL != "" {
		c["image_url"] = p.ImageInfo.ThumbnailURL
	}
	if rel := walmartRelURL(p); rel != "" {
		c["deal_url"] = "https://www.walmart.com" + rel
	}

	// Extra context the site exposes; downstream keeps what it knows.
	if p.AverageRating > 0 {
		c["rating"] = p.AverageRating
	}
	if p.NumberOfReviews > 0 {
		c["reviews"] = p.NumberOfReviews
	}
	if badges := walmartBadges(p); len(badges) > 0 {
		c["badges"] = badges
	}
	return c
}

func walmartRelURL(p walmartProduct) string {
	if p.CanonicalURL != "" {
		return p.CanonicalURL
	}
	if p.ProductURL != "" {
		return p.ProductURL
	}
	return p.URL
}

func walmartBadges(p walmartProduct) []string {
	var badges []string
	seen := make(map[string]bool)
	add := func(text string) {
		if text != "" && !seen[text] {
			seen[text] = true
			badges = append(badges, text)
		}
	}
	for _, f := range p.Badges.Flags {
		add(f.Text)
	}
	for _, group := range p.Badges.GroupsV2 {
		for _, member := range group.Members {
			for _, content := range member.Content {
				add(content.Value)
			}
		}
	}
	return badges
}

package scrapers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/go-resty/resty/v2"

	"github.com/neohiodeals/dealfeed/internal/models"
	"github.com/neohiodeals/dealfeed/internal/util"
)

const (
	aldiAPI = "https://api.aldi.us/v2/products"
	aldiWeb = "https://www.aldi.us"

	aldiSKUChunkSize = 30
)

// Pages that, in practice, make the storefront fire large
// /v2/products?skus=... requests we can harvest SKUs from.
var aldiEntryPages = []string{
	aldiWeb + "/",
	aldiWeb + "/featured/new-trending",
	aldiWeb + "/featured/aldi-finds",
	aldiWeb + "/search?q=weekly",
	aldiWeb + "/search?q=seasonal",
	aldiWeb + "/search?q=limited",
}

// Categories that mark a product as promotional rather than everyday
// stock. Loose heuristic.
var aldiDealCategories = map[string]bool{
	"ALDI Finds":   true,
	"Featured":     true,
	"Seasonal":     true,
	"Holiday":      true,
	"Home & Decor": true,
	"Food":         true,
}

// Aldi has no deals feed. A real browser visits a few storefront pages and
// we capture the SKUs the site itself requests, then hydrate them through
// the product API.
type Aldi struct {
	client       *resty.Client
	servicePoint string
	serviceType  string
	headful      bool
}

func NewAldi(servicePoint, serviceType string, headful bool) *Aldi {
	return &Aldi{
		client:       newClient(20 * time.Second),
		servicePoint: servicePoint,
		serviceType:  serviceType,
		headful:      headful,
	}
}

func (a *Aldi) Name() string { return "Aldi" }
func (a *Aldi) Slug() string { return "aldi" }

func (a *Aldi) Fetch(ctx context.Context) ([]models.Candidate, error) {
	var skus []string
	err := util.RetryWithBackoff(ctx, 2, func(_ int) error {
		var err error
		skus, err = a.collectSKUs(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("aldi browser bootstrap failed: %w", err)
	}
	if len(skus) == 0 {
		return nil, errors.New("aldi: no SKUs captured from storefront")
	}
	slog.Info("Aldi SKUs captured", "count", len(skus))

	products, err := a.hydrate(ctx, skus)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, errors.New("aldi: no products hydrated from API")
	}

	var out []models.Candidate
	for _, p := range products {
		if !aldiLooksLikeDeal(p) {
			continue
		}
		if c := aldiCandidate(p); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// collectSKUs drives a headless browser through the entry pages and
// records every SKU mentioned in the product API requests the pages make.
func (a *Aldi) collectSKUs(ctx context.Context) ([]string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !a.headful),
		chromedp.UserAgent(browserUA),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var mu sync.Mutex
	seen := make(map[string]struct{})
	chromedp.ListenTarget(browserCtx, func(ev any) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		skus := skusFromURL(req.Request.URL)
		if len(skus) == 0 {
			return
		}
		mu.Lock()
		for _, sku := range skus {
			seen[sku] = struct{}{}
		}
		mu.Unlock()
	})

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	for _, page := range aldiEntryPages {
		err := chromedp.Run(browserCtx,
			chromedp.Navigate(page),
			// Let the page's XHRs fire before moving on.
			chromedp.Sleep(2500*time.Millisecond),
		)
		if err != nil {
			slog.Warn("Aldi entry page failed, continuing", "page", page, "error", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]string, 0, len(seen))
	for sku := range seen {
		out = append(out, sku)
	}
	sort.Strings(out)
	return out, nil
}

// skusFromURL extracts the skus query parameter from a product API request
// URL. Anything else returns nil.
func skusFromURL(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil || !strings.Contains(parsed.Path, "/v2/products") {
		return nil
	}
	var out []string
	for _, param := range parsed.Query()["skus"] {
		for _, sku := range strings.Split(param, ",") {
			if sku = strings.TrimSpace(sku); sku != "" {
				out = append(out, sku)
			}
		}
	}
	return out
}

type aldiProduct struct {
	Name        string `json:"name"`
	BrandName   string `json:"brandName"`
	SKU         string `json:"sku"`
	SellingSize string `json:"sellingSize"`
	URLSlugText string `json:"urlSlugText"`
	Price       struct {
		AmountRelevantDisplay string `json:"amountRelevantDisplay"`
	} `json:"price"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

type aldiResponse struct {
	Data []aldiProduct `json:"data"`
}

// hydrate resolves captured SKUs into product JSON, in chunks the API
// accepts. A failed chunk is skipped, not fatal.
func (a *Aldi) hydrate(ctx context.Context, skus []string) ([]aldiProduct, error) {
	var out []aldiProduct
	for start := 0; start < len(skus); start += aldiSKUChunkSize {
		end := start + aldiSKUChunkSize
		if end > len(skus) {
			end = len(skus)
		}

		resp, err := a.client.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			SetHeader("Origin", aldiWeb).
			SetHeader("Referer", aldiWeb+"/").
			SetQueryParams(map[string]string{
				"servicePoint": a.servicePoint,
				"serviceType":  a.serviceType,
				"skus":         strings.Join(skus[start:end], ","),
				"limit":        "12",
			}).
			SetResult(&aldiResponse{}).
			Get(aldiAPI)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			slog.Warn("Aldi hydrate chunk failed", "error", err)
			continue
		}
		if resp.StatusCode() != 200 {
			slog.Warn("Aldi hydrate chunk rejected", "status", resp.StatusCode())
			continue
		}
		if data, ok := resp.Result().(*aldiResponse); ok {
			out = append(out, data.Data...)
		}
	}
	return out, nil
}

func aldiLooksLikeDeal(p aldiProduct) bool {
	for _, cat := range p.Categories {
		if aldiDealCategories[cat.Name] {
			return true
		}
	}
	return false
}

func aldiCandidate(p aldiProduct) models.Candidate {
	if p.Name == "" {
		return nil
	}

	c := models.Candidate{
		"store_name":   "Aldi",
		"product_name": p.Name,
	}
	if p.Price.AmountRelevantDisplay != "" {
		c["price"] = p.Price.AmountRelevantDisplay
	}
	if p.BrandName != "" {
		c["description"] = p.BrandName
	}
	if len(p.Categories) > 0 {
		c["category"] = p.Categories[len(p.Categories)-1].Name
	}
	if p.URLSlugText != "" {
		c["deal_url"] = aldiWeb + "/" + p.URLSlugText
	}
	return c
}

package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/neohiodeals/dealfeed/internal/models"
)

const giantEagleEndpoint = "https://core.shop.gianteagle.com/api/v2"

// giantEagleQuery is the shop API's GetProducts operation, trimmed to the
// product fields we consume. The circular filter limits results to the
// weekly ad.
const giantEagleQuery = `fragment GetProductTileData on Product {
  categoryNames
  comparedPrice
  description
  displayItemSize
  displayPricePerUnit
  images {
    kind
    url
    __typename
  }
  name
  price
  scopedPromoPrice
  sku
  __typename
}

query GetProducts($cursor: String, $count: Int, $filters: ProductFilters, $store: StoreInput!, $sort: ProductSortKey) {
  products(
    first: $count
    after: $cursor
    filters: $filters
    store: $store
    sort: $sort
  ) {
    edges {
      cursor
      node {
        ...GetProductTileData
        __typename
      }
      __typename
    }
    pageInfo {
      endCursor
      hasNextPage
      __typename
    }
    totalCount
    __typename
  }
}
`

const giantEagleValidityDays = 7

type GiantEagle struct {
	client     *resty.Client
	storeCode  string
	storeLabel string
}

// NewGiantEagle targets one store by its numeric code. The label is the
// slug the site uses in product URLs (e.g. "stow").
func NewGiantEagle(storeCode, storeLabel string) *GiantEagle {
	if storeLabel == "" {
		storeLabel = "stow"
	}
	return &GiantEagle{
		client:     newClient(15 * time.Second),
		storeCode:  storeCode,
		storeLabel: storeLabel,
	}
}

func (g *GiantEagle) Name() string { return fmt.Sprintf("Giant Eagle (%s)", g.storeLabel) }
func (g *GiantEagle) Slug() string { return "giant-eagle" }

func (g *GiantEagle) Fetch(ctx context.Context) ([]models.Candidate, error) {
	payload := map[string]any{
		"operationName": "GetProducts",
		"query":         giantEagleQuery,
		"variables": map[string]any{
			"cursor": nil,
			"count":  34,
			"filters": map[string]any{
				"query":             "",
				"brandIds":          []string{},
				"healthClaimIds":    []string{},
				"benefitPrograms":   []string{},
				"savings":           []string{},
				"circular":          true,
				"excludeRestricted": false,
			},
			"store": map[string]any{"storeCode": g.storeCode},
			"sort":  "bestMatch",
		},
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json, text/plain, */*").
		SetHeader("Content-Type", "application/json").
		SetHeader("Origin", "https://www.gianteagle.com").
		SetHeader("Referer", "https://www.gianteagle.com/").
		SetBody(payload).
		Post(giantEagleEndpoint)
	if err != nil {
		return nil, fmt.Errorf("giant eagle request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("giant eagle returned status %d", resp.StatusCode())
	}

	return parseGiantEagleDeals(resp.Body(), g.storeLabel, time.Now().UTC())
}

type giantEagleImage struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Price fields come back as strings or numbers depending on the product,
// so they decode as any and go through amountDisplay/amountFloat.
type giantEagleNode struct {
	Name                string            `json:"name"`
	Price               any               `json:"price"`
	ScopedPromoPrice    any               `json:"scopedPromoPrice"`
	ComparedPrice       any               `json:"comparedPrice"`
	CategoryNames       []string          `json:"categoryNames"`
	Description         string            `json:"description"`
	DisplayItemSize     string            `json:"displayItemSize"`
	DisplayPricePerUnit string            `json:"displayPricePerUnit"`
	Images              []giantEagleImage `json:"images"`
	SKU                 string            `json:"sku"`
}

type giantEagleResponse struct {
	Data struct {
		Products struct {
			Edges []struct {
				Node giantEagleNode `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
}

// parseGiantEagleDeals normalizes a GetProducts page into candidates. The
// weekly ad runs on a seven day cycle, so every candidate gets a validity
// window starting now.
func parseGiantEagleDeals(body []byte, storeLabel string, now time.Time) ([]models.Candidate, error) {
	var payload giantEagleResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode giant eagle response: %w", err)
	}

	validUntil := now.Add(giantEagleValidityDays * 24 * time.Hour)

	var out []models.Candidate
	for _, edge := range payload.Data.Products.Edges {
		if c := giantEagleCandidate(edge.Node, storeLabel, now, validUntil); c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func giantEagleCandidate(node giantEagleNode, storeLabel string, validFrom, validUntil time.Time) models.Candidate {
	if node.Name == "" {
		return nil
	}

	// Promo price wins over the shelf price; no numeric price at all
	// (BOGO-only items) means skip.
	current := amountDisplay(node.ScopedPromoPrice)
	priceVal, hasPrice := amountFloat(node.ScopedPromoPrice)
	if current == "" {
		current = amountDisplay(node.Price)
		priceVal, hasPrice = amountFloat(node.Price)
	}
	if current == "" {
		return nil
	}

	display := current
	var extras []string
	if node.DisplayItemSize != "" {
		extras = append(extras, node.DisplayItemSize)
	}
	if node.DisplayPricePerUnit != "" && node.DisplayPricePerUnit != current {
		extras = append(extras, node.DisplayPricePerUnit)
	}
	if len(extras) > 0 {
		display = fmt.Sprintf("%s (%s)", current, strings.Join(extras, ", "))
	}

	category := "Grocery"
	if len(node.CategoryNames) > 0 {
		// The last entry is the most specific.
		category = node.CategoryNames[len(node.CategoryNames)-1]
	}

	// The store label stays out of store_name: deals from every Giant
	// Eagle location merge under one display name, and the merge key
	// survives a label change.
	c := models.Candidate{
		"store_name":   "Giant Eagle",
		"product_name": node.Name,
		"price":        display,
		"category":     category,
		"valid_from":   validFrom,
		"valid_until":  validUntil,
	}
	if node.Description != "" {
		c["description"] = node.Description
	}

	if original := amountDisplay(node.ComparedPrice); original != "" {
		c["original_price"] = original
		origVal, hasOrig := amountFloat(node.ComparedPrice)
		if hasPrice && hasOrig && origVal > priceVal {
			c["discount"] = fmt.Sprintf("Save $%.2f", origVal-priceVal)
		}
	}

	if img := pickGiantEagleImage(node.Images); img != "" {
		c["image_url"] = img
	}
	if node.SKU != "" {
		c["deal_url"] = fmt.Sprintf("https://www.gianteagle.com/%s/search/product/%s", storeLabel, node.SKU)
	}
	return c
}

// pickGiantEagleImage prefers the 256px rendition, then any image with a
// URL.
func pickGiantEagleImage(images []giantEagleImage) string {
	for _, img := range images {
		if strings.Contains(strings.ToLower(img.Kind), "256") && img.URL != "" {
			return img.URL
		}
	}
	for _, img := range images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

// amountDisplay renders a price value as "$5.99" regardless of whether the
// API sent a string or a number.
func amountDisplay(v any) string {
	switch n := v.(type) {
	case string:
		if n == "" {
			return ""
		}
		return "$" + n
	case float64:
		if n == 0 {
			return ""
		}
		return fmt.Sprintf("$%.2f", n)
	}
	return ""
}

func amountFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case float64:
		return n, true
	}
	return 0, false
}

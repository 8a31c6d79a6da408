// Package ai fills in deal categories with Gemini when a source supplies
// none. The whole package degrades gracefully: no API key means a nil
// client, and a nil client categorizes nothing.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Categories the store browsing UI understands. The model is asked to pick
// one of these.
var knownCategories = []string{
	"Grocery",
	"Household",
	"Electronics",
	"Clothing",
	"Health & Beauty",
	"Home & Decor",
	"Toys & Games",
	"Other",
}

type Client struct {
	client  *genai.Client
	modelID string
}

type categoryResult struct {
	Category string `json:"category"`
}

func NewClient(ctx context.Context, apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, nil // Return nil client if no key provided
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{client: client, modelID: modelID}, nil
}

// Categorize asks the model to pick one category for a product. Answers
// outside the known set collapse to "Other".
func (c *Client) Categorize(ctx context.Context, productName, description string) (string, error) {
	if c == nil || c.client == nil {
		return "", nil // Graceful degradation
	}

	prompt := fmt.Sprintf(`
Classify this retail product into exactly one category.

Product: "%s"
Description: "%s"

Allowed categories: %s

Output JSON adhering to the schema.
`, productName, description, strings.Join(knownCategories, ", "))

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1), // Low temperature for deterministic output
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category": {
					Type:        genai.TypeString,
					Description: "One of the allowed category names, verbatim.",
				},
			},
			Required: []string{"category"},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelID, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	// Clean up potential markdown formatting just in case
	jsonStr := strings.TrimSpace(resp.Text())
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")
	if jsonStr == "" {
		return "", fmt.Errorf("no text in gemini response")
	}

	var result categoryResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return "", fmt.Errorf("failed to parse gemini response: %w", err)
	}
	return canonicalCategory(result.Category), nil
}

func canonicalCategory(answer string) string {
	for _, cat := range knownCategories {
		if strings.EqualFold(strings.TrimSpace(answer), cat) {
			return cat
		}
	}
	return "Other"
}

// Package scrapers holds one adapter per retailer source. Each adapter
// talks to whatever surface the retailer exposes, a JSON API, a GraphQL
// endpoint or a rendered page, and emits raw candidate records for the
// normalizer.
package scrapers

import (
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Retail sites serve different content, or none, to obvious bots. All
// adapters present the same desktop Chrome identity.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

// newClient builds the shared HTTP client: browser identity, bounded
// retries on gateway errors and a polite request rate against the remote.
func newClient(timeout time.Duration) *resty.Client {
	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 1)

	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(8 * time.Second).
		SetHeader("User-Agent", browserUA).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			switch r.StatusCode() {
			case 502, 503, 504:
				return true
			}
			return false
		}).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
}

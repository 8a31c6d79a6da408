// Package storage persists canonical deal records in Postgres and exposes
// the query surface consumed by the API layer. SubmitBatch is the upsert
// engine: one transaction per batch, one savepoint per record.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/neohiodeals/dealfeed/internal/models"
)

const maxListLimit = 500

// ErrEmptyIdentity is returned for a record whose merge key is unusable.
var ErrEmptyIdentity = errors.New("record has empty store_name or product_name")

type Client struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Client {
	return &Client{db: db}
}

// BatchResult reports how a submitted batch fared.
type BatchResult struct {
	Attempted int `json:"records_attempted"`
	Applied   int `json:"records_applied"`
}

// SubmitBatch reconciles a batch of canonical records against the deals
// table. Each record is looked up by (store_name, product_name) and either
// updated in place or inserted. A record that fails is rolled back to its
// savepoint, logged and skipped; the batch commits as a whole. Only a
// transaction-level failure (storage unavailable) surfaces as an error.
func (c *Client) SubmitBatch(ctx context.Context, records []models.Record) (BatchResult, error) {
	result := BatchResult{Attempted: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			rec := &records[i]
			if err := tx.Transaction(func(itx *gorm.DB) error {
				return upsertOne(itx, rec, time.Now().UTC())
			}); err != nil {
				slog.Warn("Skipping deal record",
					"store", rec.StoreName, "product", rec.ProductName, "error", err)
				continue
			}
			result.Applied++
		}
		return nil
	})
	if err != nil {
		return BatchResult{Attempted: len(records)}, fmt.Errorf("failed to commit deal batch: %w", err)
	}
	return result, nil
}

func upsertOne(tx *gorm.DB, rec *models.Record, now time.Time) error {
	if strings.TrimSpace(rec.StoreName) == "" || strings.TrimSpace(rec.ProductName) == "" {
		return ErrEmptyIdentity
	}

	var existing models.Deal
	err := tx.Where("store_name = ? AND product_name = ?", rec.StoreName, rec.ProductName).
		First(&existing).Error
	switch {
	case err == nil:
		updates := recordUpdates(rec)
		updates["updated_at"] = now
		return tx.Model(&existing).Updates(updates).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		deal := newDeal(rec, now)
		return tx.Create(&deal).Error
	default:
		return err
	}
}

// recordUpdates maps only the fields present on the record onto column
// updates, so a partial record never nulls out previously known data.
func recordUpdates(rec *models.Record) map[string]any {
	updates := make(map[string]any)
	set := func(column, value string) {
		if value != "" {
			updates[column] = value
		}
	}
	set("store_name", rec.StoreName)
	set("product_name", rec.ProductName)
	set("price", rec.Price)
	set("original_price", rec.OriginalPrice)
	set("discount", rec.Discount)
	set("category", rec.Category)
	set("description", rec.Description)
	set("image_url", rec.ImageURL)
	set("deal_url", rec.DealURL)
	if rec.ValidFrom != nil {
		updates["valid_from"] = *rec.ValidFrom
	}
	if rec.ValidUntil != nil {
		updates["valid_until"] = *rec.ValidUntil
	}
	return updates
}

func newDeal(rec *models.Record, now time.Time) models.Deal {
	deal := models.Deal{
		StoreName:     rec.StoreName,
		ProductName:   rec.ProductName,
		Price:         rec.Price,
		OriginalPrice: rec.OriginalPrice,
		Discount:      rec.Discount,
		Category:      rec.Category,
		Description:   rec.Description,
		ImageURL:      rec.ImageURL,
		DealURL:       rec.DealURL,
		ValidFrom:     rec.ValidFrom,
		ValidUntil:    rec.ValidUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if deal.ValidFrom == nil {
		deal.ValidFrom = &now
	}
	return deal
}

// DealFilter narrows an active-deal listing. Zero values mean "no filter".
type DealFilter struct {
	Store    string
	Category string
	Search   string
	Limit    int
}

// ActiveDeals lists deals whose validity window has not closed, newest
// first. Text filters are case-insensitive substring matches, matching the
// behavior the API layer has always exposed.
func (c *Client) ActiveDeals(ctx context.Context, f DealFilter) ([]models.Deal, error) {
	q := c.activeQuery(ctx)
	if f.Store != "" {
		q = q.Where("store_name ILIKE ?", "%"+f.Store+"%")
	}
	if f.Category != "" {
		q = q.Where("category ILIKE ?", "%"+f.Category+"%")
	}
	if f.Search != "" {
		q = q.Where("product_name ILIKE ?", "%"+f.Search+"%")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var deals []models.Deal
	if err := q.Order("created_at DESC").Limit(limit).Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return deals, nil
}

// SearchDeals matches the query against product name, category and
// description of active deals.
func (c *Client) SearchDeals(ctx context.Context, query string, limit int) ([]models.Deal, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = 100
	}
	pattern := "%" + query + "%"

	var deals []models.Deal
	err := c.activeQuery(ctx).
		Where("product_name ILIKE ? OR category ILIKE ? OR description ILIKE ?", pattern, pattern, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&deals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search deals: %w", err)
	}
	return deals, nil
}

func (c *Client) activeQuery(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).
		Model(&models.Deal{}).
		Where("valid_until IS NULL OR valid_until > ?", time.Now().UTC())
}

// StatsResult summarizes the stored corpus for the stats endpoint.
type StatsResult struct {
	TotalDeals   int64 `json:"total_deals"`
	ActiveDeals  int64 `json:"active_deals"`
	ActiveStores int64 `json:"active_stores"`
}

func (c *Client) Stats(ctx context.Context) (StatsResult, error) {
	var stats StatsResult
	if err := c.db.WithContext(ctx).Model(&models.Deal{}).Count(&stats.TotalDeals).Error; err != nil {
		return stats, fmt.Errorf("failed to count deals: %w", err)
	}
	if err := c.activeQuery(ctx).Count(&stats.ActiveDeals).Error; err != nil {
		return stats, fmt.Errorf("failed to count active deals: %w", err)
	}
	if err := c.db.WithContext(ctx).Model(&models.Store{}).Where("is_active = ?", true).Count(&stats.ActiveStores).Error; err != nil {
		return stats, fmt.Errorf("failed to count stores: %w", err)
	}
	return stats, nil
}

// ActiveStores lists the retailers currently being tracked.
func (c *Client) ActiveStores(ctx context.Context) ([]models.Store, error) {
	var stores []models.Store
	if err := c.db.WithContext(ctx).Where("is_active = ?", true).Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	return stores, nil
}

// MarkStoreScraped stamps last_scraped for the store slug. Unknown slugs
// are a no-op; deal ingestion does not depend on the stores table.
func (c *Client) MarkStoreScraped(ctx context.Context, slug string, at time.Time) error {
	return c.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("name = ?", slug).
		Update("last_scraped", at).Error
}

// DeleteDealsOlderThan removes deals created before the cutoff, regardless
// of their validity window. Returns the number of rows removed.
func (c *Client) DeleteDealsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := c.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Deal{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete old deals: %w", res.Error)
	}
	return res.RowsAffected, nil
}

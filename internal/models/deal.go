package models

import "time"

// MaxProductNameLen is the widest product_name the deals table accepts.
// Longer names are truncated by the normalizer, never rejected.
const MaxProductNameLen = 500

// Deal is one advertised offer as stored. The pair (StoreName, ProductName)
// is the natural merge key: ingestion updates an existing row for the pair
// instead of inserting a second one. The unique index enforces that even if
// two ingestion runs race.
type Deal struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	StoreName     string     `gorm:"size:100;not null;index;uniqueIndex:idx_deals_store_product" json:"store_name"`
	ProductName   string     `gorm:"size:500;not null;uniqueIndex:idx_deals_store_product" json:"product_name"`
	Price         string     `gorm:"size:50" json:"price"`
	OriginalPrice string     `gorm:"size:50" json:"original_price"`
	Discount      string     `gorm:"size:50" json:"discount"`
	Category      string     `gorm:"size:100;index" json:"category"`
	Description   string     `gorm:"type:text" json:"description"`
	ImageURL      string     `gorm:"size:500" json:"image_url"`
	DealURL       string     `gorm:"size:500" json:"deal_url"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Deal) TableName() string { return "deals" }

// Record is a canonical deal record as emitted by the normalizer and
// accepted by the upsert engine. An empty string or nil time means the
// field is absent; absent fields never overwrite stored data.
type Record struct {
	StoreName     string     `json:"store_name" validate:"required"`
	ProductName   string     `json:"product_name" validate:"required,max=500"`
	Price         string     `json:"price,omitempty"`
	OriginalPrice string     `json:"original_price,omitempty"`
	Discount      string     `json:"discount,omitempty"`
	Category      string     `json:"category,omitempty"`
	Description   string     `json:"description,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	DealURL       string     `json:"deal_url,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
}

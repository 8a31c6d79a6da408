package models

import "time"

// Store is a retailer the system tracks. Name is a lowercase slug used for
// seeding and last_scraped bookkeeping; Deal.StoreName is a free display
// label and is deliberately not a foreign key to this table.
type Store struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:100;not null;uniqueIndex" json:"name"`
	DisplayName string     `gorm:"size:100" json:"display_name"`
	Website     string     `gorm:"size:200" json:"website"`
	LogoURL     string     `gorm:"size:500" json:"logo_url"`
	LastScraped *time.Time `json:"last_scraped"`
	IsActive    bool       `gorm:"default:true" json:"-"`
}

func (Store) TableName() string { return "stores" }

package storage

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/neohiodeals/dealfeed/internal/models"
)

// Open connects to Postgres, tunes the pool and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.Deal{}, &models.Store{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	slog.Info("Database connected and migrated")
	return db, nil
}

// SeedStores inserts the tracked retailers if they are not present yet.
// Idempotent; existing rows are left alone.
func SeedStores(db *gorm.DB) error {
	seeds := []models.Store{
		{Name: "walmart", DisplayName: "Walmart", Website: "https://www.walmart.com", IsActive: true},
		{Name: "giant-eagle", DisplayName: "Giant Eagle", Website: "https://www.gianteagle.com", IsActive: true},
		{Name: "aldi", DisplayName: "Aldi", Website: "https://www.aldi.us", IsActive: true},
		{Name: "dollar-general", DisplayName: "Dollar General", Website: "https://www.dollargeneral.com", IsActive: true},
		{Name: "marcs", DisplayName: "Marc's", Website: "https://www.marcs.com", IsActive: true},
	}
	for _, seed := range seeds {
		var count int64
		if err := db.Model(&models.Store{}).Where("name = ?", seed.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check store seed %s: %w", seed.Name, err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&seed).Error; err != nil {
			return fmt.Errorf("failed to seed store %s: %w", seed.Name, err)
		}
	}
	return nil
}

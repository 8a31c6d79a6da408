package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string

	ScrapeCron  string
	CleanupCron string

	RetentionDays  int
	AdapterDealCap int
	AdapterTimeout time.Duration
	RunTimeout     time.Duration

	WalmartStoreID       string
	GiantEagleStoreCode  string
	GiantEagleStoreLabel string
	AldiServicePoint     string
	AldiServiceType      string
	AldiHeadful          bool
	FlippAccessToken     string
	FlippPublicationID   string

	GeminiAPIKey string
	GeminiModel  string
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required but not set")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	scrapeCron := os.Getenv("SCRAPE_CRON")
	if scrapeCron == "" {
		scrapeCron = "0 6 * * *"
	}
	cleanupCron := os.Getenv("CLEANUP_CRON")
	if cleanupCron == "" {
		cleanupCron = "30 6 * * *"
	}

	retentionDays := 30
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid RETENTION_DAYS %q", v)
		}
		retentionDays = parsed
	}

	adapterDealCap := 50
	if v := os.Getenv("ADAPTER_DEAL_CAP"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid ADAPTER_DEAL_CAP %q", v)
		}
		adapterDealCap = parsed
	}

	adapterTimeout, err := durationEnv("ADAPTER_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	runTimeout, err := durationEnv("RUN_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	geminiModel := os.Getenv("GEMINI_MODEL")
	if geminiModel == "" {
		geminiModel = "gemini-2.0-flash"
	}

	return &Config{
		DatabaseURL: databaseURL,
		Port:        port,

		ScrapeCron:  scrapeCron,
		CleanupCron: cleanupCron,

		RetentionDays:  retentionDays,
		AdapterDealCap: adapterDealCap,
		AdapterTimeout: adapterTimeout,
		RunTimeout:     runTimeout,

		WalmartStoreID:       envOr("WALMART_STORE_ID", "4285"),
		GiantEagleStoreCode:  envOr("GIANT_EAGLE_STORE_CODE", "4096"),
		GiantEagleStoreLabel: os.Getenv("GIANT_EAGLE_STORE_LABEL"),
		AldiServicePoint:     envOr("ALDI_SERVICE_POINT", "463-091"),
		AldiServiceType:      envOr("ALDI_SERVICE_TYPE", "pickup"),
		AldiHeadful:          boolEnv("ALDI_HEADFUL"),
		FlippAccessToken:     envOr("DG_FLIPP_ACCESS_TOKEN", "00be606cd7cb8b0cf999e3c7b038a2fe"),
		FlippPublicationID:   os.Getenv("DG_FLIPP_PUBLICATION_ID"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  geminiModel,
	}, nil
}

// RetentionWindow is the age past which a deal row is swept.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "True":
		return true
	}
	return false
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

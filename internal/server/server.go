// Package server exposes the REST API: public read endpoints over stored
// deals and admin endpoints for bulk ingestion, cleanup and triggering a
// scrape run.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neohiodeals/dealfeed/internal/ingest"
	"github.com/neohiodeals/dealfeed/internal/models"
	"github.com/neohiodeals/dealfeed/internal/normalizer"
	"github.com/neohiodeals/dealfeed/internal/storage"
)

// DealStore is the slice of the storage client the API needs.
type DealStore interface {
	ActiveDeals(ctx context.Context, f storage.DealFilter) ([]models.Deal, error)
	SearchDeals(ctx context.Context, query string, limit int) ([]models.Deal, error)
	Stats(ctx context.Context) (storage.StatsResult, error)
	ActiveStores(ctx context.Context) ([]models.Store, error)
	SubmitBatch(ctx context.Context, records []models.Record) (storage.BatchResult, error)
	DeleteDealsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// IngestRunner triggers a full scrape-and-store run.
type IngestRunner interface {
	RunAll(ctx context.Context) (ingest.Report, error)
}

type Config struct {
	// Retention is the age past which the cleanup endpoint deletes deals.
	Retention time.Duration
	// RunTimeout bounds a triggered scrape run.
	RunTimeout time.Duration
}

type Server struct {
	store  DealStore
	runner IngestRunner
	norm   *normalizer.Normalizer
	cfg    Config
}

func New(store DealStore, runner IngestRunner, cfg Config) *Server {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	return &Server{
		store:  store,
		runner: runner,
		norm:   normalizer.New(),
		cfg:    cfg,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.GET("/stores", s.listStores)
		api.GET("/deals", s.listDeals)
		api.GET("/deals/search", s.searchDeals)
		api.GET("/deals/:store", s.listDealsByStore)
		api.GET("/stats", s.stats)

		admin := api.Group("/admin")
		{
			admin.POST("/deals/bulk", s.bulkAddDeals)
			admin.POST("/deals/cleanup", s.cleanupDeals)
			admin.POST("/scrape", s.triggerScrape)
		}
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listStores(c *gin.Context) {
	stores, err := s.store.ActiveStores(c.Request.Context())
	if err != nil {
		s.serverError(c, "Failed to list stores", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": stores, "count": len(stores)})
}

func (s *Server) listDeals(c *gin.Context) {
	filter := storage.DealFilter{
		Store:    c.Query("store"),
		Category: c.Query("category"),
		Search:   c.Query("search"),
		Limit:    intQuery(c, "limit"),
	}

	deals, err := s.store.ActiveDeals(c.Request.Context(), filter)
	if err != nil {
		s.serverError(c, "Failed to list deals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deals": deals, "count": len(deals)})
}

func (s *Server) listDealsByStore(c *gin.Context) {
	store := c.Param("store")
	deals, err := s.store.ActiveDeals(c.Request.Context(), storage.DealFilter{
		Store: store,
		Limit: intQuery(c, "limit"),
	})
	if err != nil {
		s.serverError(c, "Failed to list deals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"store": store, "deals": deals, "count": len(deals)})
}

func (s *Server) searchDeals(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search query"})
		return
	}

	deals, err := s.store.SearchDeals(c.Request.Context(), query, intQuery(c, "limit"))
	if err != nil {
		s.serverError(c, "Search failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "deals": deals, "count": len(deals)})
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.serverError(c, "Failed to compute stats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_deals":   stats.TotalDeals,
		"active_deals":  stats.ActiveDeals,
		"active_stores": stats.ActiveStores,
		"last_updated":  time.Now().UTC().Format(time.RFC3339),
	})
}

// bulkAddDeals accepts an array of raw deal objects, runs them through the
// same normalization as scraped batches and upserts them.
func (s *Server) bulkAddDeals(c *gin.Context) {
	var batch []models.Candidate
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected array of deals"})
		return
	}

	records, _ := s.norm.Normalize(normalizer.Options{}, batch)
	result, err := s.store.SubmitBatch(c.Request.Context(), records)
	if err != nil {
		s.serverError(c, "Bulk submission failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"deals_processed": len(batch),
		"deals_added":     result.Applied,
	})
}

func (s *Server) cleanupDeals(c *gin.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.Retention)
	deleted, err := s.store.DeleteDealsOlderThan(c.Request.Context(), cutoff)
	if err != nil {
		s.serverError(c, "Cleanup failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted_count": deleted})
}

// triggerScrape kicks off a run in the background and returns immediately.
// The run outlives the request, so it gets its own context.
func (s *Server) triggerScrape(c *gin.Context) {
	if s.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scraping is not configured"})
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Triggered ingestion run panicked", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
		defer cancel()

		report, err := s.runner.RunAll(ctx)
		if err != nil {
			slog.Error("Triggered ingestion run failed", "error", err)
			return
		}
		slog.Info("Triggered ingestion run finished",
			"status", report.Status, "applied", report.Batch.Applied)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) serverError(c *gin.Context, msg string, err error) {
	slog.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

func intQuery(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// Package api serves a read-only view of the state store over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go-internship-scanner/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultRecentDays = 7
	maxRecentDays     = 365
)

// StoreReader is the part of the state store the API exposes.
type StoreReader interface {
	Stats(ctx context.Context) (models.StoreStats, error)
	RecentPostings(ctx context.Context, days int) ([]models.SeenRecord, error)
}

type handler struct {
	store  StoreReader
	logger zerolog.Logger
}

func NewRouter(store StoreReader, logger zerolog.Logger) *gin.Engine {
	h := &handler{store: store, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/", h.health)
	r.GET("/stats", h.stats)
	r.GET("/postings/recent", h.recent)
	return r
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Underclass Internship Scanner API is running!",
		"status":  "healthy",
	})
}

func (h *handler) stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("❌ Failed to read store stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handler) recent(c *gin.Context) {
	days := defaultRecentDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer between 1 and 365"})
			return
		}
		days = n
	}

	records, err := h.store.RecentPostings(c.Request.Context(), days)
	if err != nil {
		h.logger.Error().Err(err).Int("days", days).Msg("❌ Failed to read recent postings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read postings"})
		return
	}
	if records == nil {
		records = []models.SeenRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "count": len(records), "postings": records})
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

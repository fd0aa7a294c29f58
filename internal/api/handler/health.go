package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stylematch/internal/service"
)

// HealthHandler reports liveness and catalog readiness.
type HealthHandler struct {
	similarityService *service.SimilarityService
	started           time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(similarityService *service.SimilarityService) *HealthHandler {
	return &HealthHandler{
		similarityService: similarityService,
		started:           time.Now(),
	}
}

// Health handles GET /health. It never touches the catalog.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"cache_entries":  h.similarityService.CacheStats().Entries,
	})
}

// Ready handles GET /ready: 200 when the catalog loads, 503 otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	sizes, err := h.similarityService.Categories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	total := 0
	for _, n := range sizes {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"products": total,
	})
}

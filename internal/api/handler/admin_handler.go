package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/service"
)

// AdminHandler handles admin operations on the running service.
type AdminHandler struct {
	similarityService *service.SimilarityService
	logger            *logger.Logger
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - similarityService: similarity service whose cache is administered.
//   - log: logger instance.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(similarityService *service.SimilarityService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		similarityService: similarityService,
		logger:            log,
	}
}

// log returns the request-scoped logger, falling back to the handler's logger
func (h *AdminHandler) log(c *gin.Context) *logger.Logger {
	return logger.FromContextOr(c.Request.Context(), h.logger)
}

// GetCacheStats handles GET /api/v1/admin/cache.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) GetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.similarityService.CacheStats())
}

// ResetCache handles DELETE /api/v1/admin/cache.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ResetCache(c *gin.Context) {
	before := h.similarityService.CacheStats()
	h.similarityService.ResetCache()

	h.log(c).WithField(logger.FieldCount, before.Entries).Info("Embedding cache reset")

	c.JSON(http.StatusOK, gin.H{
		"status":  "reset",
		"dropped": before.Entries,
	})
}

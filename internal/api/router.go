package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/stylematch/internal/api/handler"
	"github.com/timmy/stylematch/internal/api/middleware"
	"github.com/timmy/stylematch/internal/config"
	"github.com/timmy/stylematch/internal/logger"
	"github.com/timmy/stylematch/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	similarityService *service.SimilarityService,
	cfg *config.Config,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(similarityService)
	similarityHandler := handler.NewSimilarityHandler(similarityService, handler.SimilarityDefaults{
		TopK:                     cfg.Similarity.TopK,
		MinScore:                 cfg.Similarity.MinScore,
		ExcludeReferenceCategory: cfg.Similarity.ExcludeReferenceCategory,
	})
	adminHandler := handler.NewAdminHandler(similarityService, log)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		// Similarity
		v1.GET("/products/:id/similar", similarityHandler.FindSimilar)

		// Categories
		v1.GET("/categories", similarityHandler.GetCategories)

		// Admin
		v1.GET("/admin/cache", adminHandler.GetCacheStats)
		v1.DELETE("/admin/cache", adminHandler.ResetCache)
	}

	return r
}

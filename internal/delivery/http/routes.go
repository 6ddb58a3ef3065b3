package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flyerlens/backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger zerolog.Logger) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		v1.GET("/weeks", handler.ListWeeks)
		v1.GET("/weeks/:week/items", handler.GetWeekItems)
		v1.GET("/items", handler.ListItems)
		v1.GET("/deals", handler.ListDeals)
		v1.GET("/history", handler.GetHistory)
		v1.POST("/insights", handler.EvaluateInsight)
		v1.GET("/filters", handler.GetFilters)
		v1.POST("/refresh", handler.RefreshCatalog)

		cart := v1.Group("/cart")
		{
			cart.GET("", handler.GetCart)
			cart.DELETE("", handler.ClearCart)
			cart.POST("/items", handler.AddCartItem)
			cart.DELETE("/items/:id", handler.RemoveCartItem)
			cart.PUT("/budget", handler.SetBudget)
			cart.POST("/export", handler.ExportCart)
		}
	}

	return router
}

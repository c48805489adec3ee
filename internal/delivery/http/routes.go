package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vineetdaniels2108/npi-data-dashboard/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger zerolog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(logger))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// Same path as the public registry so clients only swap the base URL
	router.GET("/api/", handler.SearchRegistry)

	return router
}

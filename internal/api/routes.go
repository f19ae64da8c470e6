package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jroosing/relaydns/internal/api/handlers"
	"github.com/jroosing/relaydns/internal/api/middleware"
	"github.com/jroosing/relaydns/internal/config"
)

// RegisterRoutes mounts the management API under /api/v1.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	api := r.Group("/api/v1")

	// Optional API key protection.
	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/config", h.GetConfig)
	api.PUT("/config", h.PutConfig)
}

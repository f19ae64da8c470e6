package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jroosing/relaydns/internal/api/models"
	"github.com/jroosing/relaydns/internal/config"
)

// GetConfig returns the relay configuration.
func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.cfg.Proxy)
}

// PutConfig replaces the relay configuration: interfaces and NAT64
// prefix are validated, persisted, and the engine is re-initialized.
func (h *Handler) PutConfig(c *gin.Context) {
	var req config.ProxyConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	if h.applyConfig == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "configuration updates not available"})
		return
	}
	if err := h.applyConfig(req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	h.cfg.Proxy = req
	c.JSON(http.StatusOK, models.StatusResponse{Status: "applied"})
}

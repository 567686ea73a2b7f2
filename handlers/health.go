package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	cacheRoot string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(cacheRoot string) *HealthHandler {
	return &HealthHandler{cacheRoot: cacheRoot}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "encore",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus returns the status of the API
func (h *HealthHandler) APIStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Encore API is running",
		"cache_dir": h.cacheRoot,
	})
}

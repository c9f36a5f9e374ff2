package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"access-service/internal/cache"
)

// HealthHandler exposes liveness and readiness probes
type HealthHandler struct {
	db    *gorm.DB
	cache *cache.ContextCache
}

func NewHealthHandler(db *gorm.DB, cache *cache.ContextCache) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Health is the liveness probe
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "access-service"})
}

// Ready is the readiness probe. Redis is optional so an unavailable cache
// degrades the report but does not fail it.
func (h *HealthHandler) Ready(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"checks": gin.H{"database": "down"},
		})
		return
	}

	cacheStatus := "degraded"
	if h.cache.IsAvailable() {
		cacheStatus = "up"
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": gin.H{
			"database": "up",
			"cache":    cacheStatus,
		},
	})
}

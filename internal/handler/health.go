package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"tradeeval/internal/modelstate"
)

type HealthHandler struct {
	DB       *gorm.DB
	Registry *modelstate.Registry
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Description Ready once the database answers and a weights version is active.
// @Tags health
// @Success 200 {object} map[string]any
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	snap := h.Registry.Load()
	if snap == nil || snap.Weights.Version == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "weights_missing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ready",
		"weights_version": snap.Weights.Version,
		"segments":        len(snap.Segments),
	})
}

package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradeeval/internal/service"
)

type ModelHandler struct {
	Recalibration *service.RecalibrationService
	Logger        *zap.Logger
}

func (h *ModelHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/recalibration/run", h.run)
	r.POST("/api/v1/model/rollback", h.rollback)
}

// @Summary Run one recalibration cycle now
// @Tags model
// @Produce json
// @Success 200 {object} service.CycleResult
// @Router /api/v1/recalibration/run [post]
func (h *ModelHandler) run(c *gin.Context) {
	if h.Recalibration == nil {
		Error(c, http.StatusInternalServerError, "recalibration service unavailable", nil)
		return
	}
	res, err := h.Recalibration.RunOnce(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("manual recalibration failed", zap.Error(err))
		}
		Fail(c, err)
		return
	}
	Ok(c, res, nil)
}

type rollbackRequest struct {
	Version int    `json:"version"`
	Note    string `json:"note"`
}

// @Summary Re-activate an older weights version as a new version
// @Tags model
// @Accept json
// @Produce json
// @Param body body rollbackRequest true "target version"
// @Success 200 {object} modelstate.Weights
// @Router /api/v1/model/rollback [post]
func (h *ModelHandler) rollback(c *gin.Context) {
	if h.Recalibration == nil {
		Error(c, http.StatusInternalServerError, "recalibration service unavailable", nil)
		return
	}
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Version <= 0 {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	w, err := h.Recalibration.Rollback(c.Request.Context(), req.Version, strings.TrimSpace(req.Note))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, w, nil)
}

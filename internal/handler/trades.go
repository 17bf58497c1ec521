package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradeeval/internal/service"
)

type TradeHandler struct {
	Evaluation *service.EvaluationService
	Outcomes   *service.OutcomeService
	Logger     *zap.Logger
}

func (h *TradeHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/trades")
	g.POST("/evaluate", h.evaluate)
	g.GET("/:trade_id", h.get)
	g.POST("/:trade_id/outcome", h.resolve)
}

// @Summary Evaluate a trade proposal
// @Tags trades
// @Accept json
// @Produce json
// @Param body body service.EvaluateRequest true "trade proposal"
// @Success 200 {object} service.Evaluation
// @Router /api/v1/trades/evaluate [post]
func (h *TradeHandler) evaluate(c *gin.Context) {
	if h.Evaluation == nil {
		Error(c, http.StatusInternalServerError, "evaluation service unavailable", nil)
		return
	}
	var req service.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	out, err := h.Evaluation.Evaluate(c.Request.Context(), req)
	if err != nil {
		if h.Logger != nil && !errors.Is(err, service.ErrEmptyTrade) {
			h.Logger.Error("trade evaluation failed", zap.Error(err))
		}
		Fail(c, err)
		return
	}
	Ok(c, out, nil)
}

type resolveOutcomeRequest struct {
	Outcome string `json:"outcome"`
}

// @Summary Resolve the outcome of an evaluated trade
// @Tags trades
// @Accept json
// @Produce json
// @Param trade_id path string true "trade id"
// @Param body body resolveOutcomeRequest true "ACCEPTED, REJECTED, COUNTERED or EXPIRED"
// @Success 200 {object} models.OutcomeRecord
// @Router /api/v1/trades/{trade_id}/outcome [post]
func (h *TradeHandler) resolve(c *gin.Context) {
	if h.Outcomes == nil {
		Error(c, http.StatusInternalServerError, "outcome service unavailable", nil)
		return
	}
	tradeID := strings.TrimSpace(c.Param("trade_id"))
	var req resolveOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	item, err := h.Outcomes.Resolve(c.Request.Context(), tradeID, req.Outcome)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, item, nil)
}

// @Summary Get the logged outcome record of a trade
// @Tags trades
// @Produce json
// @Param trade_id path string true "trade id"
// @Success 200 {object} models.OutcomeRecord
// @Router /api/v1/trades/{trade_id} [get]
func (h *TradeHandler) get(c *gin.Context) {
	if h.Outcomes == nil {
		Error(c, http.StatusInternalServerError, "outcome service unavailable", nil)
		return
	}
	item, err := h.Outcomes.Get(c.Request.Context(), strings.TrimSpace(c.Param("trade_id")))
	if err != nil {
		Fail(c, err)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	Ok(c, item, nil)
}

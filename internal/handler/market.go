package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradeeval/internal/models"
	"tradeeval/internal/repository"
	"tradeeval/internal/trade"
)

// MarketHandler loads crowd valuation snapshots. The evaluator only reads
// them; this is the ingestion path for the league data feed.
type MarketHandler struct {
	Repo repository.MarketRepository
}

func (h *MarketHandler) Register(r *gin.Engine) {
	r.PUT("/api/v1/market/values", h.upsert)
}

type marketValueItem struct {
	Name       string  `json:"name"`
	Position   string  `json:"position"`
	Age        int     `json:"age"`
	Superflex  bool    `json:"superflex"`
	AsOf       string  `json:"as_of"`
	Value      float64 `json:"value"`
	Volatility float64 `json:"volatility"`
}

type upsertMarketValuesRequest struct {
	Items []marketValueItem `json:"items"`
}

// @Summary Upsert player market value snapshots
// @Tags market
// @Accept json
// @Produce json
// @Param body body upsertMarketValuesRequest true "snapshots"
// @Success 200 {object} map[string]int
// @Router /api/v1/market/values [put]
func (h *MarketHandler) upsert(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	var req upsertMarketValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	items := make([]models.PlayerMarketValue, 0, len(req.Items))
	for i, it := range req.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" || it.Value < 0 {
			Error(c, http.StatusBadRequest, "invalid item", map[string]any{"index": i})
			return
		}
		asOf := today
		if it.AsOf != "" {
			parsed, err := time.Parse("2006-01-02", it.AsOf)
			if err != nil {
				Error(c, http.StatusBadRequest, "invalid as_of", map[string]any{"index": i})
				return
			}
			asOf = parsed.UTC()
		}
		items = append(items, models.PlayerMarketValue{
			Name:           name,
			NormalizedName: trade.NormalizeName(name),
			Position:       strings.ToUpper(strings.TrimSpace(it.Position)),
			Age:            it.Age,
			Superflex:      it.Superflex,
			AsOf:           asOf,
			Value:          it.Value,
			Volatility:     it.Volatility,
		})
	}
	if err := h.Repo.UpsertMarketValues(c.Request.Context(), items); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]int{"upserted": len(items)}, nil)
}

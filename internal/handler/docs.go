package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Trade Evaluator

Fantasy trade fairness, acceptance odds and negotiation toolkit, with
calibration monitoring and automatic intercept recalibration.

## Auth

All /api/* routes require a Bearer token (validated upstream).
Health, readiness and metrics endpoints are public.

## Routes

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
- POST /api/v1/trades/evaluate
- GET /api/v1/trades/:trade_id
- POST /api/v1/trades/:trade_id/outcome
- GET /api/v1/calibration/summary
- GET /api/v1/calibration/segments
- GET /api/v1/calibration/drift?feature=market
- GET /api/v1/calibration/intercepts
- GET /api/v1/calibration/alerts
- GET /api/v1/calibration/alerts/stream (websocket)
- POST /api/v1/recalibration/run
- POST /api/v1/model/rollback
- PUT /api/v1/market/values
- GET /api/v1/system-settings/switches
- PUT /api/v1/system-settings/switches/:name

Calibration routes accept since, until (RFC3339 or YYYY-MM-DD), mode and
segment (format|scoring|mode).
`)
	})
}

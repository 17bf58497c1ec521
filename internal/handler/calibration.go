package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"tradeeval/internal/drift"
	"tradeeval/internal/service"
)

type CalibrationHandler struct {
	Service *service.CalibrationService
	Hub     *service.AlertHub
	Logger  *zap.Logger

	// PingInterval keeps idle stream connections alive through proxies.
	PingInterval time.Duration
}

func (h *CalibrationHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/calibration")
	g.GET("/summary", h.summary)
	g.GET("/segments", h.segments)
	g.GET("/drift", h.drift)
	g.GET("/intercepts", h.intercepts)
	g.GET("/alerts", h.alerts)
	g.GET("/alerts/stream", h.stream)
}

// @Summary Global calibration report
// @Tags calibration
// @Produce json
// @Param since query string false "RFC3339 or YYYY-MM-DD"
// @Param until query string false "RFC3339 or YYYY-MM-DD"
// @Param mode query string false "league mode"
// @Param segment query string false "format|scoring|mode"
// @Success 200 {object} service.CalibrationSummary
// @Router /api/v1/calibration/summary [get]
func (h *CalibrationHandler) summary(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "calibration service unavailable", nil)
		return
	}
	q := calibrationQuery(c)
	out, err := h.Service.Summary(c.Request.Context(), q)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, queryMeta(q))
}

// @Summary Per-segment calibration with the worst segments ranked
// @Tags calibration
// @Produce json
// @Success 200 {object} service.SegmentsReport
// @Router /api/v1/calibration/segments [get]
func (h *CalibrationHandler) segments(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "calibration service unavailable", nil)
		return
	}
	q := calibrationQuery(c)
	out, err := h.Service.Segments(c.Request.Context(), q)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, queryMeta(q))
}

// @Summary Feature drift between the latest window and the one before it
// @Tags calibration
// @Produce json
// @Param feature query string false "driver id for a weekly PSI series"
// @Success 200 {object} service.DriftReport
// @Router /api/v1/calibration/drift [get]
func (h *CalibrationHandler) drift(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "calibration service unavailable", nil)
		return
	}
	q := calibrationQuery(c)
	feature := strings.TrimSpace(c.Query("feature"))
	if feature != "" && !validFeature(feature) {
		Error(c, http.StatusBadRequest, "unknown feature", map[string]any{"features": service.DriftFeatures()})
		return
	}
	out, err := h.Service.Drift(c.Request.Context(), q, feature)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, queryMeta(q))
}

func validFeature(f string) bool {
	for _, it := range service.DriftFeatures() {
		if it == f {
			return true
		}
	}
	return false
}

// @Summary Active weights, segment intercepts, recent shadows and promotions
// @Tags calibration
// @Produce json
// @Success 200 {object} service.InterceptsReport
// @Router /api/v1/calibration/intercepts [get]
func (h *CalibrationHandler) intercepts(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "calibration service unavailable", nil)
		return
	}
	out, err := h.Service.Intercepts(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, nil)
}

// @Summary Current calibration and drift alerts
// @Tags calibration
// @Produce json
// @Success 200 {array} drift.Alert
// @Router /api/v1/calibration/alerts [get]
func (h *CalibrationHandler) alerts(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "calibration service unavailable", nil)
		return
	}
	q := calibrationQuery(c)
	out, err := h.Service.Alerts(c.Request.Context(), q)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, out, queryMeta(q))
}

type alertFrame struct {
	Type   string        `json:"type"`
	At     time.Time     `json:"at"`
	Alerts []drift.Alert `json:"alerts,omitempty"`
}

// stream pushes alert batches over a websocket. The last published batch is
// replayed on connect.
func (h *CalibrationHandler) stream(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusServiceUnavailable, "alert stream unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("alert stream accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := conn.CloseRead(c.Request.Context())
	ch, cancel := h.Hub.Subscribe(16)
	defer cancel()

	if recent := h.Hub.Recent(); len(recent) > 0 {
		if err := writeFrame(ctx, conn, alertFrame{Type: "alerts", At: time.Now().UTC(), Alerts: recent}); err != nil {
			return
		}
	}

	interval := h.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case batch, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "hub closed")
				return
			}
			if err := writeFrame(ctx, conn, alertFrame{Type: "alerts", At: time.Now().UTC(), Alerts: batch}); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeFrame(ctx, conn, alertFrame{Type: "ping", At: time.Now().UTC()}); err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame alertFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

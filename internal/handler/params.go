package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradeeval/internal/service"
)

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// timeQuery accepts RFC3339 or a bare date. Unparseable values are ignored.
func timeQuery(c *gin.Context, key string) *time.Time {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, val); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// calibrationQuery reads the shared since/until/mode/segment filters.
func calibrationQuery(c *gin.Context) service.CalibrationQuery {
	return service.CalibrationQuery{
		Since:   timeQuery(c, "since"),
		Until:   timeQuery(c, "until"),
		Mode:    strings.ToLower(strings.TrimSpace(c.Query("mode"))),
		Segment: strings.ToLower(strings.TrimSpace(c.Query("segment"))),
	}
}

func queryMeta(q service.CalibrationQuery) map[string]any {
	meta := map[string]any{}
	if q.Since != nil {
		meta["since"] = q.Since.Format(time.RFC3339)
	}
	if q.Until != nil {
		meta["until"] = q.Until.Format(time.RFC3339)
	}
	if q.Mode != "" {
		meta["mode"] = q.Mode
	}
	if q.Segment != "" {
		meta["segment"] = q.Segment
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func isOpenPath(p string) bool {
	return p == "/healthz" || p == "/readyz" || p == "/metrics"
}

func isProtectedPath(p string) bool {
	return strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/swagger") || p == "/docs"
}

// RequireBearer rejects API, swagger and docs requests without a bearer
// token. Token validation happens at the gateway.
func RequireBearer(disabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if disabled || isOpenPath(p) || !isProtectedPath(p) {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
			return
		}
		c.Next()
	}
}

// WriteAudit records every mutating API request after it completes.
func WriteAudit(client *Client, logger *zap.Logger) gin.HandlerFunc {
	if client == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/api/") {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		status := c.Writer.Status()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := client.Send(ctx, Event{
			Action: "tradeeval_http_write",
			Level:  LevelFromStatus(status),
			Details: map[string]any{
				"method":   c.Request.Method,
				"route":    c.FullPath(),
				"path":     path,
				"status":   status,
				"duration": time.Since(start).String(),
			},
		})
		if err != nil && logger != nil {
			logger.Debug("audit write log failed", zap.Error(err))
		}
	}
}

func LevelFromStatus(status int) string {
	switch {
	case status >= 500:
		return "error"
	case status >= 400:
		return "warn"
	default:
		return "info"
	}
}

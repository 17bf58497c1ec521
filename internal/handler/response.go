package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeeval/internal/repository"
	"tradeeval/internal/service"
)

// envelope wraps every API body. Code is 0 on success and mirrors the HTTP
// status on failure.
type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, envelope{Message: "ok", Data: data, Meta: meta})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, envelope{Code: status, Message: message, Meta: meta})
}

// Fail reports a service error with the status its sentinel maps to.
// Unrecognised errors are treated as upstream storage failures.
func Fail(c *gin.Context, err error) {
	Error(c, statusFor(err), err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyTrade), errors.Is(err, service.ErrInvalidOutcome):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrVersionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

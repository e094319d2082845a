package handler

import (
	"net/http"

	"cardlink/backend/internal/relationship"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse represents a generic error response.
type ErrorResponse struct {
	Error string `json:"error" example:"An error message"`
	Code  string `json:"code,omitempty" example:"NOT_FOUND"`
}

func statusFor(kind relationship.Kind) int {
	switch kind {
	case relationship.KindInvalidArgument:
		return http.StatusBadRequest
	case relationship.KindAlreadyExists, relationship.KindInvalidState:
		return http.StatusConflict
	case relationship.KindNotFound:
		return http.StatusNotFound
	case relationship.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse. Internal details stay in the logs.
func (h *ConnectionHandler) respondError(c *gin.Context, err error) {
	kind := relationship.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "Internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Error: msg, Code: kind.String()})
}

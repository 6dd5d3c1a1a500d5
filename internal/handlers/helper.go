package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/SAP-F-2025/quiro-companion/internal/services"
	"github.com/gin-gonic/gin"
)

func ParseStringIDParam(c *gin.Context, param string) string {
	idStr := c.Param(param)
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

// actionStatus picks the HTTP status for a controller action. Failures the
// session already reports through its error message are not HTTP errors.
func actionStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case services.IsConflict(err):
		return http.StatusConflict
	case services.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, services.ErrRequestInFlight):
		return "REQUEST_IN_FLIGHT"
	case errors.Is(err, services.ErrSessionClosed):
		return "SESSION_CLOSED"
	case errors.Is(err, services.ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case services.IsValidation(err):
		return "VALIDATION_FAILED"
	}
	return ""
}

// Package httpkit carries the shared HTTP response shapes and middleware
// used by every handler in the service.
package httpkit

import (
	"net/http"

	"leadscoring_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the envelope every failed request returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a payload with an explicit status code.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// Error writes an ErrorResponse with the given status code.
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// OK writes a 200 response.
func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// HandleError translates a service error into an HTTP response and
// reports whether it did so. Typed *apperr.Error values map through
// their kind; anything untyped is treated as a bad request so handlers
// never leak internals by accident.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	if domainErr, ok := err.(*apperr.Error); ok {
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:   domainErr.Message,
			Details: domainErr.Details,
		})
		return true
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	return true
}

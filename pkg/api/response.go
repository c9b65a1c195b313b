package api

import (
	"errors"
	"net/http"

	"generichttp/pkg/device"
	"generichttp/pkg/persistence"
	"generichttp/pkg/registry"
	"generichttp/pkg/transport"

	"github.com/gin-gonic/gin"
)

// respondError sends a structured JSON error response
func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": gin.H{
			"message": message,
			"status":  code,
		},
	})
	c.Abort()
}

// respondFailure maps a device or registry error to its HTTP status.
func respondFailure(c *gin.Context, err error) {
	respondError(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownDevice), errors.Is(err, device.ErrUnknownPort):
		return http.StatusNotFound
	case errors.Is(err, device.ErrNotWritable):
		return http.StatusForbidden
	case errors.Is(err, device.ErrInvalidValue), errors.Is(err, persistence.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, transport.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

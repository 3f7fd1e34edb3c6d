package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"zinga/logger"
)

// GenerateDashlessUUID creates a new UUID v4 and returns its string representation
// with all dashes removed.
func GenerateDashlessUUID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// APIError is the JSON body of every error response. The admin UI displays
// Error verbatim.
type APIError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// GinError sends a JSON error response with a specific status code.
// It logs the error server-side as well.
func GinError(c *gin.Context, statusCode int, message string) {
	log := logger.FromContext(c.Request.Context())
	event := log.Warn()
	if statusCode >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", statusCode).
		Msg(message)
	c.AbortWithStatusJSON(statusCode, APIError{Success: false, Error: message})
}

// GinBadRequest sends a 400 Bad Request error response.
func GinBadRequest(c *gin.Context, message string) {
	GinError(c, http.StatusBadRequest, message)
}

// GinUnauthorized sends a 401 Unauthorized error response.
func GinUnauthorized(c *gin.Context, message string) {
	GinError(c, http.StatusUnauthorized, message)
}

// GinForbidden sends a 403 Forbidden error response.
func GinForbidden(c *gin.Context, message string) {
	GinError(c, http.StatusForbidden, message)
}

// GinNotFound sends a 404 Not Found error response.
func GinNotFound(c *gin.Context, message string) {
	GinError(c, http.StatusNotFound, message)
}

// GinConflict sends a 409 Conflict error response.
func GinConflict(c *gin.Context, message string) {
	GinError(c, http.StatusConflict, message)
}

// GinTooManyRequests sends a 429 Too Many Requests error response.
func GinTooManyRequests(c *gin.Context, message string) {
	GinError(c, http.StatusTooManyRequests, message)
}

// GinInternalServerError sends a 500 Internal Server Error response.
func GinInternalServerError(c *gin.Context, message string) {
	GinError(c, http.StatusInternalServerError, message)
}

package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zinga/logger"
)

func TestGenerateDashlessUUID(t *testing.T) {
	uuid := GenerateDashlessUUID()

	if len(uuid) != 32 {
		t.Errorf("Expected UUID length 32, got %d", len(uuid))
	}
	if strings.Contains(uuid, "-") {
		t.Errorf("Generated UUID should not contain dashes, got %s", uuid)
	}
	assert.NotEqual(t, uuid, GenerateDashlessUUID())
}

// Helper function to create a test Gin context
func createTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/test", nil)
	return c, w
}

func TestGinError(t *testing.T) {
	c, w := createTestContext()

	GinError(c, http.StatusTeapot, "Generic error")

	assert.Equal(t, http.StatusTeapot, w.Code)
	var response APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.Equal(t, "Generic error", response.Error)
	assert.True(t, c.IsAborted(), "Context should be aborted")
}

func TestGinErrorHelpers(t *testing.T) {
	testCases := []struct {
		name       string
		helperFunc func(*gin.Context, string)
		expected   int
	}{
		{"BadRequest", GinBadRequest, http.StatusBadRequest},
		{"Unauthorized", GinUnauthorized, http.StatusUnauthorized},
		{"Forbidden", GinForbidden, http.StatusForbidden},
		{"NotFound", GinNotFound, http.StatusNotFound},
		{"Conflict", GinConflict, http.StatusConflict},
		{"TooManyRequests", GinTooManyRequests, http.StatusTooManyRequests},
		{"InternalServerError", GinInternalServerError, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, w := createTestContext()
			tc.helperFunc(c, tc.name+" message")

			assert.Equal(t, tc.expected, w.Code)
			var response APIError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tc.name+" message", response.Error)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(logger.Nop()))
	router.POST("/write", NewRateLimiter(0.001, 1).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/write", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/write", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRequestLogger_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(logger.Nop()))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	generated := httptest.NewRecorder()
	router.ServeHTTP(generated, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Len(t, generated.Header().Get(RequestIDHeader), 32)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	echoed := httptest.NewRecorder()
	router.ServeHTTP(echoed, req)
	assert.Equal(t, "abc123", echoed.Header().Get(RequestIDHeader))
}

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursedesk/coursedesk-api/internal/ratelimit"
)

func TestRateLimitStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxAttempts: 5, Window: 10 * time.Minute})
	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(context.Background(), "alice@example.com")
		require.NoError(t, err)
	}
	handler := NewRateLimitHandler(limiter)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/admin/ratelimit/alice@example.com", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "alice@example.com"}}

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":3`)
	assert.Contains(t, w.Body.String(), `"remaining":2`)
}

func TestRateLimitClear(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxAttempts: 5, Window: 10 * time.Minute})
	for i := 0; i < 5; i++ {
		_, err := limiter.Allow(context.Background(), "alice@example.com")
		require.NoError(t, err)
	}
	handler := NewRateLimitHandler(limiter)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/admin/ratelimit/alice@example.com", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "key", Value: "alice@example.com"}}

	handler.Clear(c)
	assert.Equal(t, http.StatusNoContent, w.Code)

	res, err := limiter.Status(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
}

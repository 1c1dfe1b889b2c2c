package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coursedesk/coursedesk-api/internal/ratelimit"
	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
	"github.com/coursedesk/coursedesk-api/pkg/response"
)

// RateLimitHandler exposes administrative visibility into the login limiter.
type RateLimitHandler struct {
	limiter ratelimit.Limiter
}

// NewRateLimitHandler creates a new handler.
func NewRateLimitHandler(limiter ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status godoc
// @Summary Inspect a login window
// @Description Reports the current attempt count without recording one
// @Tags RateLimit
// @Produce json
// @Param key path string true "Identity key (email)"
// @Success 200 {object} response.Envelope
// @Router /admin/ratelimit/{key} [get]
func (h *RateLimitHandler) Status(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "key required"))
		return
	}

	res, err := h.limiter.Status(c.Request.Context(), key)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "limiter unavailable"))
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"key":                 key,
		"count":               res.Count,
		"remaining":           res.Remaining,
		"allowed":             res.Allowed,
		"retry_after_seconds": int64(res.RetryAfter.Seconds()),
	}, nil)
}

// Clear godoc
// @Summary Reset a login window
// @Tags RateLimit
// @Produce json
// @Param key path string true "Identity key (email)"
// @Success 204 {object} response.Envelope
// @Router /admin/ratelimit/{key} [delete]
func (h *RateLimitHandler) Clear(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "key required"))
		return
	}

	if err := h.limiter.Clear(c.Request.Context(), key); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "limiter unavailable"))
		return
	}
	response.NoContent(c)
}

// ClearAll godoc
// @Summary Reset every login window
// @Tags RateLimit
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /admin/ratelimit [delete]
func (h *RateLimitHandler) ClearAll(c *gin.Context) {
	if err := h.limiter.ClearAll(c.Request.Context()); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "limiter unavailable"))
		return
	}
	response.NoContent(c)
}

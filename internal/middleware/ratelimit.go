package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/blotter/internal/ratelimit"
	apperrors "github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/logger"
	"github.com/charlesng35/blotter/pkg/response"
)

// RequestKey picks the bucket a request is charged to.
type RequestKey func(*gin.Context) string

// ClientRoute charges each client separately per route template. The raw path
// is not used, so rotating tokens in the URL does not buy fresh buckets.
func ClientRoute(c *gin.Context) string {
	return c.ClientIP() + "|" + c.FullPath()
}

// RateLimit charges one point per request to limiter. A nil limiter disables
// it, and a nil key means ClientRoute. Limiter failures let the request
// through; the per-token PIN limiter still guards the secrets behind it.
func RateLimit(limiter ratelimit.Limiter, key ...RequestKey) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	keyOf := ClientRoute
	if len(key) > 0 && key[0] != nil {
		keyOf = key[0]
	}

	return func(c *gin.Context) {
		decision, err := limiter.Consume(c.Request.Context(), keyOf(c))
		if err != nil {
			logger.WithModule("http").Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			response.Error(c, apperrors.ErrRateLimit.WithRetryAfter(decision.RetryAfter))
			c.Abort()
			return
		}
		c.Next()
	}
}

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/response"
)

// BodyLimit caps the request body at limit bytes. A declared Content-Length
// over the cap is refused with 413 before the handler runs; chunked bodies
// fail when the handler reads past the cap.
func BodyLimit(limit int64) gin.HandlerFunc {
	if limit <= 0 {
		return passThrough
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.Header("Connection", "close")
			response.Error(c, errors.ErrEvidenceTooLarge)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// RequestTimeout puts a deadline on the request context. Handlers observe it
// through c.Request.Context(); the middleware itself writes nothing.
func RequestTimeout(d time.Duration) gin.HandlerFunc {
	if d <= 0 {
		return passThrough
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func passThrough(c *gin.Context) { c.Next() }

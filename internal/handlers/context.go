package handlers

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
)

// maxUserAgentLen bounds the user agent copied into audit rows.
const maxUserAgentLen = 512

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requestOrigin returns the client IP and a bounded user agent for audit entries.
func requestOrigin(c *gin.Context) (ip, userAgent string) {
	if c == nil || c.Request == nil {
		return "", ""
	}
	userAgent = strings.TrimSpace(c.Request.UserAgent())
	if len(userAgent) > maxUserAgentLen {
		userAgent = userAgent[:maxUserAgentLen]
		for !utf8.ValidString(userAgent) {
			userAgent = userAgent[:len(userAgent)-1]
		}
	}
	return c.ClientIP(), userAgent
}

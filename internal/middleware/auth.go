package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/blotter/internal/auth"
	"github.com/charlesng35/blotter/pkg/errors"
	"github.com/charlesng35/blotter/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

const bearerPrefix = "bearer "

// Auth admits requests carrying a valid staff access token and records the
// caller on the context. Every rejection is the same 401.
func Auth(verifier *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := staffClaims(c, verifier)
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="blotter"`)
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Next()
	}
}

func staffClaims(c *gin.Context, verifier *iauth.JWTService) (*iauth.Claims, bool) {
	if verifier == nil {
		return nil, false
	}
	token := BearerToken(c)
	if token == "" {
		return nil, false
	}
	claims, err := verifier.ValidateAccessToken(token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// StaffID returns the authenticated staff member's id, or "" outside Auth.
func StaffID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

// BearerToken reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so upgrade requests may pass access_token instead.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	if c.Request != nil && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}

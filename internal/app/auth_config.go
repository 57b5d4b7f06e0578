package app

import (
	"strings"

	"github.com/charlesng35/blotter/internal/auth"
)

// JWTServiceConfig maps auth settings onto the token verifier. Negative
// durations are treated as unset.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	out := auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         strings.TrimSpace(c.JWT.Issuer),
		Audience:       strings.TrimSpace(c.JWT.Audience),
		AccessTokenTTL: auth.DefaultAccessTokenTTL,
	}
	if c.JWT.TTL > 0 {
		out.AccessTokenTTL = c.JWT.TTL
	}
	if c.JWT.Leeway > 0 {
		out.Leeway = c.JWT.Leeway
	}
	return out
}

package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/blotter/pkg/crypto"
)

const jwtSecretBytes = 48

// RuntimeDefault records a setting filled in at startup. Value is empty for
// secrets so the result can be logged as is.
type RuntimeDefault struct {
	Key    string
	Value  string
	Secret bool
}

// ApplyRuntimeDefaults fills settings a local instance needs but a config file
// may omit. A generated JWT secret will not verify tokens minted by the case
// management system, and guest links built on a derived base URL are only
// reachable from the host itself.
func ApplyRuntimeDefaults(cfg *Config) ([]RuntimeDefault, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var applied []RuntimeDefault

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		applied = append(applied, RuntimeDefault{Key: "auth.jwt.secret", Secret: true})
	}

	if strings.TrimSpace(cfg.Server.BaseURL) == "" && cfg.Server.Port > 0 {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		applied = append(applied, RuntimeDefault{Key: "server.base_url", Value: cfg.Server.BaseURL})
	}

	return applied, nil
}

package app

import (
	"github.com/charlesng35/blotter/pkg/logger"
)

// ConfigureLogging installs the global logger from the server section.
// "console" is meant for local runs; deployments keep the json default.
func ConfigureLogging(cfg ServerConfig) error {
	return logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

// Package logging builds the process-wide zap logger.
package logging

import (
	"go.uber.org/zap"

	"shelf/internal/config"
)

// New builds a logger from cfg. Format "json" selects the production encoder;
// anything else selects the human-readable development encoder. An unknown
// level falls back to info.
func New(cfg config.LogConfig, environment string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	zapConfig.InitialFields = map[string]interface{}{
		"service":     "shelf",
		"environment": environment,
	}

	return zapConfig.Build()
}

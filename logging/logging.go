// Package logging builds the zap logger used across rentchat.
package logging

import (
	"fmt"

	"github.com/karthikraju391/rentchat/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger for cfg. Format "json" selects the production encoder,
// anything else the human-readable console encoder.
func New(cfg config.Logging) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.Development = false
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

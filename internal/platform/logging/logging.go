// Package logging builds the structured loggers used by cafe processes.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mode selects the logger encoding and default level.
type Mode string

const (
	// ModeDevelopment logs human-readable console lines at debug level.
	ModeDevelopment Mode = "dev"
	// ModeProduction logs JSON lines at info level.
	ModeProduction Mode = "prod"
)

// ParseMode normalizes a configured mode string. Empty selects development.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "dev", "development":
		return ModeDevelopment, nil
	case "prod", "production":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("unknown log mode %q", raw)
	}
}

// New builds a logger for mode tagged with the service name.
func New(mode Mode, service string) (*zap.Logger, error) {
	var cfg zap.Config
	switch mode {
	case ModeProduction:
		cfg = zap.NewProductionConfig()
	case ModeDevelopment, "":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log mode %q", mode)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if service = strings.TrimSpace(service); service != "" {
		logger = logger.With(zap.String("service", service))
	}
	return logger, nil
}

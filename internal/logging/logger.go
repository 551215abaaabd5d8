// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production. When
// logFile is non-empty the logger also appends to that file.
func New(development bool, logFile string) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if logFile != "" {
			cfg.OutputPaths = append(cfg.OutputPaths, logFile)
		}
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	if logFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, logFile)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewSwitchable builds the same logger as New but routes every entry through
// a Switch, so the destination can be replaced while the process runs. The
// dashboard points the switch at its log panel for as long as it owns the
// terminal and restores the original destination when it stops.
func NewSwitchable(development bool, logFile string) (*zap.Logger, *Switch, error) {
	base, err := New(development, logFile)
	if err != nil {
		return nil, nil, err
	}
	sw := NewSwitch(base.Core())
	logger := base.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return sw }))
	return logger, sw, nil
}

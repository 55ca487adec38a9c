// Package logging builds the zap loggers used by both binaries.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger at the given level ("debug", "info",
// "warn", "error"). Format "console" switches to the human-readable encoder;
// anything else logs JSON.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return cfg.Build()
}

// Must is New that panics on error, for use at program start.
func Must(level, format string) *zap.Logger {
	l, err := New(level, format)
	if err != nil {
		panic(err)
	}
	return l
}

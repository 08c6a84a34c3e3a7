// Package logging builds the logr.Logger used across the application.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V().
const (
	DEFAULT = 0
	DEBUG   = 1
	TRACE   = 2
)

// New creates a zap-backed logger. verbosity maps to logr V-levels, so
// verbosity 2 enables logger.V(TRACE) output.
func New(verbosity int, development bool) (logr.Logger, error) {
	level := uberzap.NewAtomicLevelAt(zapcore.Level(-1 * verbosity))

	cfg := uberzap.NewProductionConfig()
	if development {
		cfg = uberzap.NewDevelopmentConfig()
	}
	cfg.Level = level

	zapLog, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zapLog), nil
}

// NewTestLogger creates a development logger with trace verbosity.
func NewTestLogger() logr.Logger {
	logger, err := New(TRACE, true)
	if err != nil {
		return logr.Discard()
	}
	return logger
}

// IntoContext stores the logger in ctx.
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}

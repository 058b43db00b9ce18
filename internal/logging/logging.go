package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Verbose bool
	// Console switches from JSON lines to human-readable output.
	Console bool
	// Quiet raises the floor to warnings, for one-shot CLI commands.
	Quiet bool
}

// New builds the process logger. Output goes to stderr so command output on
// stdout stays machine readable.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	switch {
	case opts.Verbose:
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case opts.Quiet:
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	if opts.Console {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.DisableStacktrace = !opts.Verbose
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// OrNop tolerates a nil logger in library structs.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

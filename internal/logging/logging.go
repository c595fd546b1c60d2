// Package logging builds the process-wide zap logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	ErrorLevel = "error"
)

// New returns a named, sugared production logger at the given level. Unknown
// levels fall back to info.
func New(level string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	switch level {
	case DebugLevel:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case ErrorLevel:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("pipewatch").Sugar(), nil
}

// NewNop returns a no-op logger for tests.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

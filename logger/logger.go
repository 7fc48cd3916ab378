// Package logger builds the zap logger used for engine diagnostics.  User
// facing output goes through the cmd package instead.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger.  Verbose enables debug level, which is where
// swallowed import failures and per component write notices land.
func New(verbose bool) *zap.Logger {
	return NewWithWriter(verbose, os.Stderr)
}

// NewWithWriter is New with the output redirected, for tests
func NewWithWriter(verbose bool, w io.Writer) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(cfg),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// Nop returns a logger that discards everything
func Nop() *zap.Logger {
	return zap.NewNop()
}

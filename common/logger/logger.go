package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Package logger provides the leveled logging API used across the module.
// All packages log through the package-level functions so the backend can
// be swapped once at startup.

var (
	level   zap.AtomicLevel
	backend atomic.Pointer[zap.SugaredLogger]
)

func init() {
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		l = zap.NewNop()
	}
	backend.Store(l.Sugar())
}

// SetLevel sets the minimum level from a config string. Unknown values keep
// the current level.
func SetLevel(name string) {
	if lv, err := zapcore.ParseLevel(name); err == nil {
		level.SetLevel(lv)
	}
}

// SetBackend replaces the underlying logger, mainly for tests.
func SetBackend(l *zap.Logger) {
	if l != nil {
		backend.Store(l.Sugar())
	}
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) {
	backend.Load().Debugf(format, args...)
}

// Infof logs an info message.
func Infof(format string, args ...interface{}) {
	backend.Load().Infof(format, args...)
}

// Warnf logs a warning message.
func Warnf(format string, args ...interface{}) {
	backend.Load().Warnf(format, args...)
}

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) {
	backend.Load().Errorf(format, args...)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = backend.Load().Sync()
}

package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger creates a logger for testing
func NewTestLogger() *Logger {
	// Use a no-op logger for tests to avoid output
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// NewTestLoggerWithT creates a test logger that writes to testing.T
func NewTestLoggerWithT(t testing.TB) *Logger {
	level := zap.NewAtomicLevelAt(zap.DebugLevel)
	return &Logger{Logger: zaptest.NewLogger(t, zaptest.Level(level)), level: level}
}

// NewObservedLogger creates a logger that records entries at or above
// level in memory, for tests that assert on log output.
func NewObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	atomic := zap.NewAtomicLevelAt(level)
	core, logs := observer.New(atomic)
	return &Logger{Logger: zap.New(core), level: atomic}, logs
}

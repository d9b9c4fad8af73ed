package logging

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// TemporalLogger adapts Logger to the Temporal SDK log.Logger interface.
// Temporal passes alternating key/value pairs, which zap's sugared logger
// accepts as-is.
type TemporalLogger struct {
	sugar *zap.SugaredLogger
}

var (
	_ log.Logger     = (*TemporalLogger)(nil)
	_ log.WithLogger = (*TemporalLogger)(nil)
)

// NewTemporalLogger wraps l for use in client.Options.Logger.
func NewTemporalLogger(l *Logger) *TemporalLogger {
	// One extra frame for the adapter method.
	return &TemporalLogger{sugar: l.zap.WithOptions(zap.AddCallerSkip(1)).Named("temporal").Sugar()}
}

func (t *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	t.sugar.Debugw(msg, keyvals...)
}

func (t *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	t.sugar.Infow(msg, keyvals...)
}

func (t *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	t.sugar.Warnw(msg, keyvals...)
}

func (t *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	t.sugar.Errorw(msg, keyvals...)
}

// With returns a child logger with the given key/value pairs attached.
func (t *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{sugar: t.sugar.With(keyvals...)}
}

// Package logging adapts zap to the engine's logger interface.
package logging

import (
	"go.uber.org/zap"

	"ticketcore/internal/engine"
)

// ZapLogger forwards engine log events to a zap sugared logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ engine.Logger = (*ZapLogger)(nil)

// NewZap wraps an existing zap logger.
func NewZap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

// NewProduction builds a production-configured zap logger adapter. The
// returned flush function must be called on shutdown.
func NewProduction() (*ZapLogger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}
	return NewZap(logger), func() { _ = logger.Sync() }, nil
}

// Debug logs at debug level with alternating key/value pairs.
func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }

// Info logs at info level with alternating key/value pairs.
func (l *ZapLogger) Info(msg string, args ...any) { l.sugar.Infow(msg, args...) }

// Warn logs at warn level with alternating key/value pairs.
func (l *ZapLogger) Warn(msg string, args ...any) { l.sugar.Warnw(msg, args...) }

// Error logs at error level with alternating key/value pairs.
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

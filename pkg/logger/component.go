package logger

import (
	"context"

	"go.uber.org/zap"
)

// Component provides structured event logging scoped to one engine component
type Component struct {
	logger *zap.Logger
}

// Component creates a logger tagged with the component name
func (l *Logger) Component(name string) *Component {
	base := zap.NewNop()
	if l != nil && l.Logger != nil {
		base = l.Logger
	}
	return &Component{
		logger: base.With(zap.String("component", name)),
	}
}

// With returns a copy carrying extra fields on every entry
func (c *Component) With(fields ...zap.Field) *Component {
	return &Component{logger: c.logger.With(fields...)}
}

// WithContext tags entries with the session and request ids carried by ctx
func (c *Component) WithContext(ctx context.Context) *Component {
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return c
	}
	return &Component{logger: c.logger.With(fields...)}
}

// Debug logs debug level event
func (c *Component) Debug(event string, fields ...zap.Field) {
	c.logger.Debug(event, fields...)
}

// Info logs info level event
func (c *Component) Info(event string, fields ...zap.Field) {
	c.logger.Info(event, fields...)
}

// Warn logs warning level event
func (c *Component) Warn(event string, fields ...zap.Field) {
	c.logger.Warn(event, fields...)
}

// Error logs error level event
func (c *Component) Error(event string, err error, fields ...zap.Field) {
	c.logger.Error(event, append([]zap.Field{zap.Error(err)}, fields...)...)
}

package logger

import (
	"context"

	pcontext "github.com/pyromaniac/pyromaniac/pkg/context"
)

// LoggerContext extends the Logger interface with context-aware methods.
type LoggerContext interface {
	Logger
	InfoContext(ctx context.Context, message string, fields ...Field)
	ErrorContext(ctx context.Context, message string, fields ...Field)
	WarnContext(ctx context.Context, message string, fields ...Field)
	DebugContext(ctx context.Context, message string, fields ...Field)
	SuccessContext(ctx context.Context, message string, fields ...Field)
}

var _ LoggerContext = (*PortLogger)(nil)

// InfoContext logs an info message with burn tracing fields
func (l *PortLogger) InfoContext(ctx context.Context, message string, fields ...Field) {
	l.Info(message, append(l.extractContextFields(ctx), fields...)...)
}

// ErrorContext logs an error message with burn tracing fields
func (l *PortLogger) ErrorContext(ctx context.Context, message string, fields ...Field) {
	l.Error(message, append(l.extractContextFields(ctx), fields...)...)
}

// WarnContext logs a warning message with burn tracing fields
func (l *PortLogger) WarnContext(ctx context.Context, message string, fields ...Field) {
	l.Warn(message, append(l.extractContextFields(ctx), fields...)...)
}

// DebugContext logs a debug message with burn tracing fields
func (l *PortLogger) DebugContext(ctx context.Context, message string, fields ...Field) {
	l.Debug(message, append(l.extractContextFields(ctx), fields...)...)
}

// SuccessContext logs a success message with burn tracing fields
func (l *PortLogger) SuccessContext(ctx context.Context, message string, fields ...Field) {
	l.Success(message, append(l.extractContextFields(ctx), fields...)...)
}

// extractContextFields pulls tracing values out of ctx; the port is left to WithPort
func (l *PortLogger) extractContextFields(ctx context.Context) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field

	if id := pcontext.GetCycleID(ctx); pcontext.IsKnown(id) {
		fields = append(fields, WithField("cycle_id", id))
	}
	if id := pcontext.GetWorkerID(ctx); pcontext.IsKnown(id) {
		fields = append(fields, WithField("worker_id", id))
	}
	if step := pcontext.GetStep(ctx); pcontext.IsKnown(step) {
		fields = append(fields, WithField("step", step))
	}
	if duration := pcontext.GetDuration(ctx); duration > 0 {
		fields = append(fields, WithField("duration_ms", duration.Milliseconds()))
	}

	return fields
}

// WithContext creates a logger that automatically includes context fields
func WithContext(ctx context.Context, logger Logger) Logger {
	if ctx == nil {
		return logger
	}

	return &contextualLogger{
		ctx:    ctx,
		logger: logger,
	}
}

// contextualLogger wraps a logger with automatic context field extraction
type contextualLogger struct {
	ctx    context.Context
	logger Logger
}

func (cl *contextualLogger) Info(message string, fields ...Field) {
	if lc, ok := cl.logger.(LoggerContext); ok {
		lc.InfoContext(cl.ctx, message, fields...)
	} else {
		cl.logger.Info(message, fields...)
	}
}

func (cl *contextualLogger) Error(message string, fields ...Field) {
	if lc, ok := cl.logger.(LoggerContext); ok {
		lc.ErrorContext(cl.ctx, message, fields...)
	} else {
		cl.logger.Error(message, fields...)
	}
}

func (cl *contextualLogger) Warn(message string, fields ...Field) {
	if lc, ok := cl.logger.(LoggerContext); ok {
		lc.WarnContext(cl.ctx, message, fields...)
	} else {
		cl.logger.Warn(message, fields...)
	}
}

func (cl *contextualLogger) Debug(message string, fields ...Field) {
	if lc, ok := cl.logger.(LoggerContext); ok {
		lc.DebugContext(cl.ctx, message, fields...)
	} else {
		cl.logger.Debug(message, fields...)
	}
}

func (cl *contextualLogger) Success(message string, fields ...Field) {
	if lc, ok := cl.logger.(LoggerContext); ok {
		lc.SuccessContext(cl.ctx, message, fields...)
	} else {
		cl.logger.Success(message, fields...)
	}
}

func (cl *contextualLogger) WithPort(port string) Logger {
	return &contextualLogger{
		ctx:    cl.ctx,
		logger: cl.logger.WithPort(port),
	}
}

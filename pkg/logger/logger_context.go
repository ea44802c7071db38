package logger

import (
	"context"
	"sort"

	wcontext "github.com/wholebody/wbc/pkg/context"
)

// WithContext creates a logger that automatically includes run, cycle and scene fields
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

func (cl *contextualLogger) fields(extra []Field) []Field {
	tracing := wcontext.TracingFields(cl.ctx)
	keys := make([]string, 0, len(tracing))
	for k := range tracing {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Field, 0, len(keys)+len(extra)+1)
	for _, k := range keys {
		out = append(out, WithField(k, tracing[k]))
	}
	if d := wcontext.GetDuration(cl.ctx); d > 0 {
		out = append(out, WithField("duration_ms", d.Milliseconds()))
	}
	return append(out, extra...)
}

func (cl *contextualLogger) Info(message string, fields ...Field) {
	cl.logger.Info(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Error(message string, fields ...Field) {
	cl.logger.Error(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Warn(message string, fields ...Field) {
	cl.logger.Warn(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Debug(message string, fields ...Field) {
	cl.logger.Debug(message, cl.fields(fields)...)
}

func (cl *contextualLogger) Success(message string, fields ...Field) {
	cl.logger.Success(message, cl.fields(fields)...)
}

func (cl *contextualLogger) WithComponent(component string) Logger {
	return &contextualLogger{
		ctx:    cl.ctx,
		logger: cl.logger.WithComponent(component),
	}
}

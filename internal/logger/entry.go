package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is a log line carrying metric fields (duration_ms, count, size...).
// It resolves its logger from the context at emit time, so request and run
// fields land on the same line as the metrics.
type Entry struct {
	logger *Logger
	fields Fields
}

// With creates a new Entry with the given metric fields.
// Example: logger.With(logger.Fields{"duration_ms": 1234}).Info(ctx, "Run completed")
func With(fields Fields) *Entry {
	return &Entry{logger: GetDefault(), fields: fields}
}

// With returns a copy of the Entry with fields merged in; later keys win.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithDuration adds a duration_ms field.
func (e *Entry) WithDuration(d time.Duration) *Entry {
	return e.With(Fields{FieldDurationMs: d.Milliseconds()})
}

// WithCount adds a count field.
func (e *Entry) WithCount(count int) *Entry {
	return e.With(Fields{FieldCount: count})
}

// WithSize adds a size field in bytes.
func (e *Entry) WithSize(bytes int) *Entry {
	return e.With(Fields{FieldSize: bytes})
}

// Debug logs at Debug level with metric fields.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.DebugLevel, format, args...)
}

// Info logs at Info level with metric fields.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.InfoLevel, format, args...)
}

// Warn logs at Warn level with metric fields.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.WarnLevel, format, args...)
}

// Error logs at Error level with metric fields.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.ErrorLevel, format, args...)
}

// Status adds a status field and logs at a level derived from the HTTP
// status: 5xx at Error, 4xx at Warn, anything else at Info.
func (e *Entry) Status(ctx context.Context, status int, format string, args ...interface{}) {
	level := logrus.InfoLevel
	switch {
	case status >= http.StatusInternalServerError:
		level = logrus.ErrorLevel
	case status >= http.StatusBadRequest:
		level = logrus.WarnLevel
	}
	e.With(Fields{FieldStatus: status}).log(ctx, level, format, args...)
}

func (e *Entry) log(ctx context.Context, level logrus.Level, format string, args ...interface{}) {
	l := e.logger
	if ctx != nil {
		l = FromContextOr(ctx, e.logger)
	}
	l.WithFields(e.fields).Logf(level, format, args...)
}

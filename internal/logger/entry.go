package logger

import "context"

// Entry is a log line carrying aggregatable metric fields
// (duration_ms, count, size, status) on top of the context fields.
//
//	logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "batch flushed")
type Entry struct {
	fields Fields
}

// With starts a metric Entry.
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// With merges more fields into a copy of e.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

func (e *Entry) WithDuration(ms int64) *Entry { return e.With(Fields{FieldDurationMs: ms}) }
func (e *Entry) WithCount(n int) *Entry       { return e.With(Fields{FieldCount: n}) }
func (e *Entry) WithSize(n int) *Entry        { return e.With(Fields{FieldSize: n}) }
func (e *Entry) WithStatus(s string) *Entry   { return e.With(Fields{FieldStatus: s}) }

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Debugf(format, args...)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Infof(format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Warnf(format, args...)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Errorf(format, args...)
}

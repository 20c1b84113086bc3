// Package log is the structured logger used across vaultprops: a narrow
// interface over zerolog with JSON or console output, and helpers that
// carry request and refresh IDs through a context.
package log

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = false
}

// Logger writes leveled events. Derived loggers share the parent's output.
type Logger interface {
	Debug() Event
	Info() Event
	Warn() Event
	Error() Event

	// With returns a child logger that stamps key on every event.
	With(key string, value any) Logger
	// WithContext returns a child logger stamped with the request and
	// refresh IDs found in ctx.
	WithContext(ctx context.Context) Logger
}

// Event is a single log line under construction. Nothing is written
// until Msg or Msgf is called.
type Event interface {
	Str(key, val string) Event
	Int(key string, val int) Event
	Int64(key string, val int64) Event
	Bool(key string, val bool) Event
	Dur(key string, val time.Duration) Event
	Any(key string, val any) Event
	Err(err error) Event
	Msg(msg string)
	Msgf(format string, args ...any)
}

// New returns a logger writing to stdout. Level is one of debug, info,
// warn or error; format is json or console.
func New(level, format string) Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level, format string, w io.Writer) Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zlog{zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return zlog{zerolog.Nop()}
}

// parseLevel falls back to info for anything zerolog does not recognise.
func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type zlog struct{ zerolog.Logger }

func (l zlog) Debug() Event { return zevent{l.Logger.Debug()} }
func (l zlog) Info() Event  { return zevent{l.Logger.Info()} }
func (l zlog) Warn() Event  { return zevent{l.Logger.Warn()} }
func (l zlog) Error() Event { return zevent{l.Logger.Error()} }

func (l zlog) With(key string, value any) Logger {
	return zlog{l.Logger.With().Interface(key, value).Logger()}
}

func (l zlog) WithContext(ctx context.Context) Logger {
	zc := l.Logger.With()
	if id := RequestIDFromContext(ctx); id != "" {
		zc = zc.Str("request_id", id)
	}
	if id := RefreshIDFromContext(ctx); id != "" {
		zc = zc.Str("refresh_id", id)
	}
	return zlog{zc.Logger()}
}

// zevent wraps a zerolog event. A nil *zerolog.Event is a disabled level
// and every method on it is a no-op.
type zevent struct{ e *zerolog.Event }

func (z zevent) Str(k, v string) Event               { return zevent{z.e.Str(k, v)} }
func (z zevent) Int(k string, v int) Event           { return zevent{z.e.Int(k, v)} }
func (z zevent) Int64(k string, v int64) Event       { return zevent{z.e.Int64(k, v)} }
func (z zevent) Bool(k string, v bool) Event         { return zevent{z.e.Bool(k, v)} }
func (z zevent) Dur(k string, v time.Duration) Event { return zevent{z.e.Dur(k, v)} }
func (z zevent) Any(k string, v any) Event           { return zevent{z.e.Interface(k, v)} }
func (z zevent) Err(err error) Event                 { return zevent{z.e.Err(err)} }
func (z zevent) Msg(msg string)                      { z.e.Msg(msg) }
func (z zevent) Msgf(format string, args ...any)     { z.e.Msgf(format, args...) }

type ctxKey int

const (
	requestIDKey ctxKey = iota
	refreshIDKey
	loggerKey
)

// ContextWithRequestID tags ctx with the ID of an HTTP request.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithRefreshID tags ctx with the ID of a refresh cycle.
func ContextWithRefreshID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, refreshIDKey, id)
}

// RefreshIDFromContext returns the refresh cycle ID in ctx, or "".
func RefreshIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(refreshIDKey).(string)
	return id
}

// ContextWithLogger stores l in ctx for FromContext.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return NewNop()
}

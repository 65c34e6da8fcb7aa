package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ZeroLogger implements the ports.Logger interface on top of zerolog.
// When the context carries an active span, every record is stamped with
// its trace and span ids so logs and traces can be correlated.
type ZeroLogger struct {
	log zerolog.Logger
}

// New creates a zerolog-backed logger writing to stderr. Unknown level
// strings fall back to info rather than failing startup.
func New(level string) *ZeroLogger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
	return &ZeroLogger{log: zl}
}

func (l *ZeroLogger) emit(ctx context.Context, e *zerolog.Event, msg string, fields []map[string]interface{}) {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e = e.Str("traceID", sc.TraceID().String()).Str("spanID", sc.SpanID().String())
	}
	if len(fields) > 0 && fields[0] != nil {
		e = e.Fields(fields[0])
	}
	e.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(ctx, l.log.Debug(), msg, fields)
}

// Info logs a message at Info level.
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(ctx, l.log.Info(), msg, fields)
}

// Warn logs a message at Warning level.
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.emit(ctx, l.log.Warn(), msg, fields)
}

// Error logs an error message at Error level.
func (l *ZeroLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.emit(ctx, l.log.Error().Err(err), msg, fields)
}

package telemetry

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger of an invocation. Library packages take the
// zerolog.Logger it wraps; the wrapper carries it through contexts.
type Logger struct {
	zlog zerolog.Logger
}

type loggerContextKey struct{}

// NewLogger builds a logger writing to out. Secrets are masked before
// anything reaches out.
func NewLogger(cfg LoggingConfig, out io.Writer) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zlog := zerolog.New(maskingWriter{out: out}).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()
	return &Logger{zlog: zlog}
}

// Zerolog returns the wrapped logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// WithEnvironment tags every entry with the selected environment.
func (l *Logger) WithEnvironment(env string) *Logger {
	if env == "" {
		return l
	}
	return &Logger{zlog: l.zlog.With().Str("env", env).Logger()}
}

// WithContext returns a copy of ctx carrying l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the logger carried by ctx, or a disabled one.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: zerolog.Nop()}
}

// ParseLevel converts a level name to a zerolog.Level. Unknown names map
// to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

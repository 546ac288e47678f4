package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry is the logger, tracer and metrics of one invocation.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry validates cfg and builds all three pillars. Logs go to
// stderr.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Telemetry{
		Logger:  NewLogger(cfg.Logging, os.Stderr).WithEnvironment(cfg.Environment),
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext returns a copy of ctx carrying the invocation logger.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// Shutdown flushes spans and writes the metrics textfile, if configured.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Tracer.Shutdown(ctx),
		t.Metrics.WriteTextfile(),
	)
}

// StartOperation opens a span named operation on tracer. When ctx carries
// a Logger, the returned context carries one tagged with the operation
// and, for sampled spans, the trace id.
func StartOperation(ctx context.Context, tracer trace.Tracer, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, operation, trace.WithAttributes(attrs...))

	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		zctx := l.zlog.With().Str("operation", operation)
		if id := TraceID(ctx); id != "" {
			zctx = zctx.Str("trace_id", id)
		}
		ctx = (&Logger{zlog: zctx.Logger()}).WithContext(ctx)
	}
	return ctx, span
}

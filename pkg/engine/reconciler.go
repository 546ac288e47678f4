package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brij-raghuwanshi-db/genie-forge-sub000/pkg/telemetry"
)

// Reconciler computes plans and applies them against a RemoteClient,
// tracking results in a StateStore.
//
// Operations on a Reconciler are sequential and process items in input
// order. Only ApplyParallel and the BulkRunner issue concurrent remote
// calls. A Reconciler must not be shared by concurrent operations on the
// same store.
type Reconciler struct {
	store    StateStore
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	recorder Recorder
	policy   PolicyEvaluator
	now      func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Reconciler) {
		r.tracer = t
	}
}

// WithRecorder sets the run history recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Reconciler) {
		r.recorder = rec
	}
}

// WithPolicy sets the policy evaluator consulted before apply and destroy.
func WithPolicy(p PolicyEvaluator) Option {
	return func(r *Reconciler) {
		r.policy = p
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a reconciler over store.
func NewReconciler(store StateStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("genie-forge/engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "reconciler").Logger()
	return r
}

func (r *Reconciler) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.StartOperation(ctx, r.tracer, name, attrs...)
}

// startRun opens a history run. History is best effort: failures are
// logged and an empty run id disables further recording for the run.
func (r *Reconciler) startRun(ctx context.Context, kind RunKind, env string) string {
	if r.recorder == nil {
		return ""
	}
	id, err := r.recorder.StartRun(ctx, string(kind), env)
	if err != nil {
		r.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to record run start")
		return ""
	}
	trace.SpanFromContext(ctx).SetAttributes(telemetry.AttrRunID.String(id))
	return id
}

func (r *Reconciler) recordEvent(ctx context.Context, runID, logicalID string, action PlanAction, err error) {
	if r.recorder == nil || runID == "" {
		return
	}
	outcome, message := "success", ""
	if err != nil {
		outcome, message = "failed", err.Error()
	}
	if rerr := r.recorder.RecordEvent(ctx, runID, logicalID, string(action), outcome, message); rerr != nil {
		r.logger.Warn().Err(rerr).Str("run_id", runID).Msg("Failed to record run event")
	}
}

func (r *Reconciler) finishRun(ctx context.Context, runID string, status RunStatus, summary string) {
	if r.recorder == nil || runID == "" {
		return
	}
	if err := r.recorder.FinishRun(ctx, runID, string(status), summary); err != nil {
		r.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to record run finish")
	}
}

// recordFailure counts a failed item by its error class and code.
func (r *Reconciler) recordFailure(err error) {
	r.metrics.RecordError(string(ErrorClassOf(err)), ErrorCodeOf(err))
}

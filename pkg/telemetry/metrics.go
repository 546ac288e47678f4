package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for genie-forge.
//
// All recording methods are safe to call on a nil or disabled Metrics.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Plan metrics
	plannedChanges *prometheus.GaugeVec

	// Space operation metrics
	spaceOperations *prometheus.CounterVec
	spaceOpDuration *prometheus.HistogramVec

	// Remote API metrics
	remoteRequests *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	remoteRetries  *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Drift detection metrics
	driftDetections *prometheus.CounterVec

	// State metrics
	managedSpaces *prometheus.GaugeVec

	bulkInFlight prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of reconciler runs by kind and status",
			},
			[]string{"kind", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of reconciler runs in seconds",
				Buckets:   buckets,
			},
			[]string{"kind"},
		),

		plannedChanges: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "planned_changes",
				Help:      "Number of plan items by action in the most recent plan",
			},
			[]string{"environment", "action"},
		),

		spaceOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "space_operations_total",
				Help:      "Total number of space create, update and delete operations",
			},
			[]string{"operation", "status"},
		),
		spaceOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "space_operation_duration_seconds",
				Help:      "Duration of space operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		remoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_requests_total",
				Help:      "Total number of remote API requests by method and status code",
			},
			[]string{"method", "code"},
		),
		remoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_request_duration_seconds",
				Help:      "Duration of remote API requests in seconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),
		remoteRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_retries_total",
				Help:      "Total number of retried remote API requests",
			},
			[]string{"method"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		driftDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drift_detections_total",
				Help:      "Total number of checked spaces by drift outcome",
			},
			[]string{"environment", "status"},
		),

		managedSpaces: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "managed_spaces",
				Help:      "Current number of tracked spaces by status",
			},
			[]string{"environment", "status"},
		),

		bulkInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bulk_in_flight",
				Help:      "Current number of in-flight bulk operations",
			},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.plannedChanges,
		m.spaceOperations,
		m.spaceOpDuration,
		m.remoteRequests,
		m.remoteDuration,
		m.remoteRetries,
		m.errorsByClass,
		m.errorsByCode,
		m.driftDetections,
		m.managedSpaces,
		m.bulkInFlight,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// RecordRunCompleted records a finished plan, apply, destroy or drift run.
func (m *Metrics) RecordRunCompleted(kind, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetPlannedChanges records the item count of one plan action.
func (m *Metrics) SetPlannedChanges(environment, action string, count int) {
	if !m.enabled() {
		return
	}
	m.plannedChanges.WithLabelValues(environment, action).Set(float64(count))
}

// RecordSpaceOperation records one create, update or delete.
func (m *Metrics) RecordSpaceOperation(operation, status string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.spaceOperations.WithLabelValues(operation, status).Inc()
	m.spaceOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRemoteRequest records one HTTP round trip. A code of 0 means the
// request failed before a response was received.
func (m *Metrics) RecordRemoteRequest(method string, code int, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.remoteRequests.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	m.remoteDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRemoteRetry records a retried remote request.
func (m *Metrics) RecordRemoteRetry(method string) {
	if !m.enabled() {
		return
	}
	m.remoteRetries.WithLabelValues(method).Inc()
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if !m.enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordDriftDetection records the drift outcome of one space.
func (m *Metrics) RecordDriftDetection(environment, status string) {
	if !m.enabled() {
		return
	}
	m.driftDetections.WithLabelValues(environment, status).Inc()
}

// SetManagedSpaces sets the tracked space count for a status.
func (m *Metrics) SetManagedSpaces(environment, status string, count int) {
	if !m.enabled() {
		return
	}
	m.managedSpaces.WithLabelValues(environment, status).Set(float64(count))
}

// AddBulkInFlight adjusts the in-flight bulk operation gauge.
func (m *Metrics) AddBulkInFlight(delta float64) {
	if !m.enabled() {
		return
	}
	m.bulkInFlight.Add(delta)
}

// Gatherer exposes the registry, or nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if !m.enabled() {
		return nil
	}
	return m.registry
}

// WriteTextfile writes all metrics to the configured textfile. It is a
// no-op when disabled or when no path is configured.
func (m *Metrics) WriteTextfile() error {
	if !m.enabled() || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", m.config.TextfilePath, err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

package telemetry

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the resolved telemetry setup of one genie-forge invocation.
type Config struct {
	ServiceName    string `validate:"required"`
	ServiceVersion string `validate:"required"`
	Environment    string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
}

// LoggingConfig selects the log level and encoding. Logs always go to
// stderr so command output on stdout stays parseable.
type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn error fatal"`
	Format string `validate:"oneof=console json"`
}

// TracingConfig selects where spans go. With Enabled unset spans are
// created against a no-op provider.
type TracingConfig struct {
	Enabled      bool
	Exporter     string  `validate:"oneof=otlp stdout none"`
	Endpoint     string  `validate:"required_if=Exporter otlp"`
	SamplingRate float64 `validate:"gte=0,lte=1"`
	Insecure     bool

	MaxExportBatchSize int
	ExportTimeout      time.Duration
}

// MetricsConfig configures metrics collection.
//
// genie-forge is a short-lived CLI, so metrics are not scraped. When
// TextfilePath is set they are written in the Prometheus text format on
// Shutdown, ready for the node_exporter textfile collector.
type MetricsConfig struct {
	Enabled      bool
	Namespace    string
	TextfilePath string

	// DefaultHistogramBuckets are the latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// Options are the telemetry knobs a user can turn: the telemetry block of
// genie-forge.yaml, --verbose and LOG_LEVEL.
type Options struct {
	Version     string
	Environment string
	Verbose     bool

	LogLevel        string
	LogFormat       string
	MetricsFile     string
	TracingExporter string
	TracingEndpoint string
}

// DefaultConfig returns console logging at info, metrics kept in memory
// and tracing off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "genie-forge",
		ServiceVersion: "dev",
		Environment:    "dev",
		Logging:        LoggingConfig{Level: "info", Format: "console"},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			Insecure:           true,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "genie_forge",
			DefaultHistogramBuckets: []float64{
				0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0,
			},
		},
	}
}

// NewConfig layers opts over DefaultConfig. Verbose wins over LogLevel,
// which wins over the LOG_LEVEL environment variable.
func NewConfig(opts Options) *Config {
	cfg := DefaultConfig()
	if opts.Version != "" {
		cfg.ServiceVersion = opts.Version
	}
	if opts.Environment != "" {
		cfg.Environment = opts.Environment
	}

	switch {
	case opts.Verbose:
		cfg.Logging.Level = "debug"
	case opts.LogLevel != "":
		cfg.Logging.Level = opts.LogLevel
	case os.Getenv("LOG_LEVEL") != "":
		cfg.Logging.Level = os.Getenv("LOG_LEVEL")
	}
	if opts.LogFormat != "" {
		cfg.Logging.Format = opts.LogFormat
	}

	cfg.Metrics.TextfilePath = opts.MetricsFile
	if opts.TracingExporter != "" && opts.TracingExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = opts.TracingExporter
		cfg.Tracing.Endpoint = opts.TracingEndpoint
	}
	return cfg
}

// Validate checks the config against its field tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}

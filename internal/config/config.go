// Package config loads process configuration from EVA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the simulator processes. Command-line flags
// in cmd/* are applied on top of the parsed environment.
type Config struct {
	TickInterval time.Duration `env:"EVA_TICK_INTERVAL" envDefault:"100ms"`
	Accelerated  bool          `env:"EVA_ACCELERATED"`

	GRPCAddr    string `env:"EVA_GRPC_ADDR"    envDefault:":50061"`
	MetricsAddr string `env:"EVA_METRICS_ADDR" envDefault:":9091"`
	WatchBuffer int    `env:"EVA_WATCH_BUFFER" envDefault:"16"`

	LogLevel  string `env:"EVA_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"EVA_LOG_FORMAT" envDefault:"text"`

	Tracing Tracing
}

// Tracing governs how OpenTelemetry tracing is initialised.
type Tracing struct {
	Enabled     bool    `env:"EVA_TRACING_ENABLED"`
	ServiceName string  `env:"EVA_TRACING_SERVICE_NAME" envDefault:"eva-telemetry"`
	Exporter    string  `env:"EVA_TRACING_EXPORTER"     envDefault:"stdout"` // stdout | otlp
	Endpoint    string  `env:"EVA_OTLP_ENDPOINT"`
	SampleRatio float64 `env:"EVA_TRACING_SAMPLE_RATIO" envDefault:"1.0"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFrom parses an explicit variable set instead of the process
// environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the simulator cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick interval must be positive, got %s", c.TickInterval))
	}
	if c.WatchBuffer < 1 {
		errs = append(errs, fmt.Errorf("watch buffer must be at least 1, got %d", c.WatchBuffer))
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("tracing sample ratio must be within [0, 1], got %v", r))
	}
	switch c.Tracing.Exporter {
	case "", "stdout", "otlp", "otlpgrpc":
	default:
		errs = append(errs, fmt.Errorf("unsupported tracing exporter %q", c.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

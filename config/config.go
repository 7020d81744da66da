// Package config loads pollpipe settings from POLLPIPE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"github.com/utkarsh5026/pollpipe/logging"
	"github.com/utkarsh5026/pollpipe/pipeline"
)

// Prefix is prepended to every environment variable name.
const Prefix = "POLLPIPE"

// Source kinds.
const (
	SourceSimulated = "simulated"
	SourceRedis     = "redis"
)

// Config holds all process configuration.
type Config struct {
	QueueCapacity   int           `envconfig:"QUEUE_CAPACITY" default:"64"`
	Pollers         int           `envconfig:"POLLERS" default:"1"`
	Processors      int           `envconfig:"PROCESSORS" default:"0"` // 0 = GOMAXPROCS
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	PollRate  float64 `envconfig:"POLL_RATE" default:"0"` // polls/sec across all pollers, 0 = unlimited
	PollBurst int     `envconfig:"POLL_BURST" default:"1"`

	Backoff        string        `envconfig:"BACKOFF" default:"none"`
	BackoffInitial time.Duration `envconfig:"BACKOFF_INITIAL" default:"100ms"`
	BackoffMax     time.Duration `envconfig:"BACKOFF_MAX" default:"5s"`

	PinProcessors bool   `envconfig:"PIN_PROCESSORS" default:"false"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:""`
	Source        string `envconfig:"SOURCE" default:"simulated"`

	Log   LogConfig   `envconfig:"LOG"`
	Sim   SimConfig   `envconfig:"SIM"`
	Redis RedisConfig `envconfig:"REDIS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// SimConfig drives the simulated source and processor.
type SimConfig struct {
	Seed           int64         `envconfig:"SEED" default:"0"`  // 0 = seed from the clock
	Items          int           `envconfig:"ITEMS" default:"0"` // 0 = unlimited
	MaxBatch       int           `envconfig:"MAX_BATCH" default:"10"`
	PollLatency    time.Duration `envconfig:"POLL_LATENCY" default:"20ms"`
	TransientRate  float64       `envconfig:"TRANSIENT_RATE" default:"0.05"`
	FatalRate      float64       `envconfig:"FATAL_RATE" default:"0"`
	ProcessLatency time.Duration `envconfig:"PROCESS_LATENCY" default:"5ms"`
	FailureRate    float64       `envconfig:"FAILURE_RATE" default:"0.02"`
}

// RedisConfig holds the redis list source configuration.
type RedisConfig struct {
	Addr         string        `envconfig:"ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"PASSWORD" default:""`
	DB           int           `envconfig:"DB" default:"0"`
	Key          string        `envconfig:"KEY" default:"pollpipe:items"`
	BatchSize    int           `envconfig:"BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"200ms"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the environment without validating it, for callers that
// apply their own overrides (command line flags) before calling Validate.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if c.QueueCapacity < 1 {
		add("QUEUE_CAPACITY must be at least 1, got %d", c.QueueCapacity)
	}
	if c.Pollers < 1 {
		add("POLLERS must be at least 1, got %d", c.Pollers)
	}
	if c.Processors < 0 {
		add("PROCESSORS must not be negative, got %d", c.Processors)
	}
	if c.ShutdownTimeout <= 0 {
		add("SHUTDOWN_TIMEOUT must be positive, got %v", c.ShutdownTimeout)
	}
	if c.PollRate < 0 {
		add("POLL_RATE must not be negative, got %v", c.PollRate)
	}
	if c.PollRate > 0 && c.PollBurst < 1 {
		add("POLL_BURST must be at least 1 when POLL_RATE is set, got %d", c.PollBurst)
	}
	if _, err := pipeline.ParseBackoffType(c.Backoff); err != nil {
		result = multierror.Append(result, err)
	}
	if c.BackoffMax < c.BackoffInitial {
		add("BACKOFF_MAX (%v) must not be below BACKOFF_INITIAL (%v)", c.BackoffMax, c.BackoffInitial)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, err)
	}

	switch c.Source {
	case SourceSimulated:
		if err := c.Sim.validate(); err != nil {
			result = multierror.Append(result, err)
		}
	case SourceRedis:
		if err := c.Redis.validate(); err != nil {
			result = multierror.Append(result, err)
		}
	default:
		add("SOURCE must be %q or %q, got %q", SourceSimulated, SourceRedis, c.Source)
	}

	return result.ErrorOrNil()
}

func (s SimConfig) validate() error {
	var result *multierror.Error
	if s.MaxBatch < 1 {
		result = multierror.Append(result, fmt.Errorf("SIM_MAX_BATCH must be at least 1, got %d", s.MaxBatch))
	}
	if s.Items < 0 {
		result = multierror.Append(result, fmt.Errorf("SIM_ITEMS must not be negative, got %d", s.Items))
	}
	for name, rate := range map[string]float64{
		"SIM_TRANSIENT_RATE": s.TransientRate,
		"SIM_FATAL_RATE":     s.FatalRate,
		"SIM_FAILURE_RATE":   s.FailureRate,
	} {
		if rate < 0 || rate > 1 {
			result = multierror.Append(result, fmt.Errorf("%s must be within [0, 1], got %v", name, rate))
		}
	}
	if s.TransientRate+s.FatalRate > 1 {
		result = multierror.Append(result, errors.New("SIM_TRANSIENT_RATE + SIM_FATAL_RATE must not exceed 1"))
	}
	return result.ErrorOrNil()
}

func (r RedisConfig) validate() error {
	var result *multierror.Error
	if r.Addr == "" {
		result = multierror.Append(result, errors.New("REDIS_ADDR is required"))
	}
	if r.Key == "" {
		result = multierror.Append(result, errors.New("REDIS_KEY is required"))
	}
	if r.BatchSize < 1 {
		result = multierror.Append(result, fmt.Errorf("REDIS_BATCH_SIZE must be at least 1, got %d", r.BatchSize))
	}
	return result.ErrorOrNil()
}

// Options translates the configuration into pipeline options.
func (c *Config) Options() []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithQueueCapacity(c.QueueCapacity),
		pipeline.WithPollers(c.Pollers),
		pipeline.WithProcessors(c.Processors),
		pipeline.WithShutdownTimeout(c.ShutdownTimeout),
		pipeline.WithProcessorAffinity(c.PinProcessors),
	}

	if c.PollRate > 0 {
		opts = append(opts, pipeline.WithPollRateLimit(c.PollRate, c.PollBurst))
	}
	if bt, err := pipeline.ParseBackoffType(c.Backoff); err == nil && bt != pipeline.BackoffNone {
		opts = append(opts, pipeline.WithPollBackoff(bt, c.BackoffInitial, c.BackoffMax))
	}
	if c.Sim.Seed != 0 {
		opts = append(opts, pipeline.WithBackoffSeed(c.Sim.Seed))
	}
	return opts
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Development = c.Log.Development
	return cfg
}

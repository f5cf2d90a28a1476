// Package config loads runtime settings from an optional YAML file and
// ORDERFLOW_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "ORDERFLOW_"

// Config holds the settings of one orderflow process.
type Config struct {
	// Database is the SQLite file holding the event log.
	Database string `yaml:"database" env:"DATABASE"`
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`

	// NATSURL enables cross-process append notifications when set.
	NATSURL     string `yaml:"nats_url" env:"NATS_URL"`
	NATSSubject string `yaml:"nats_subject" env:"NATS_SUBJECT"`

	PollInterval       time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	CheckpointInterval int           `yaml:"checkpoint_interval" env:"CHECKPOINT_INTERVAL"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// OTelEndpoint is an OTLP/HTTP collector endpoint; empty disables export.
	OTelEndpoint string `yaml:"otel_endpoint" env:"OTEL_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Database:           "orderflow.db",
		HTTPAddr:           ":3000",
		NATSSubject:        "orderflow.logstore.appended",
		PollInterval:       500 * time.Millisecond,
		CheckpointInterval: 1000,
		ShutdownTimeout:    10 * time.Second,
		ServiceName:        "orderflow",
	}
}

// Load layers defaults, the YAML file at path (skipped when path is empty)
// and the environment, in that order, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.CheckpointInterval < 1 {
		errs = append(errs, fmt.Errorf("checkpoint_interval must be at least 1, got %d", c.CheckpointInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout))
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		errs = append(errs, errors.New("nats_subject is required when nats_url is set"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service_name is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

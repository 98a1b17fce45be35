// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the scheduler daemon's configuration: scheduling
// limits, logging, metrics, and notification sink selection. It follows
// the teacher's internal/config.Load shape (YAML file, defaults applied
// to zero values, environment variables taking final precedence) scaled
// down to the handful of settings this daemon actually has.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mariogk/agentsdashboard/internal/backgroundwork"
	"github.com/mariogk/agentsdashboard/internal/log"
	scheduleerrors "github.com/mariogk/agentsdashboard/pkg/errors"
)

// LoggingConfig mirrors internal/log.Config's fields in a YAML/env
// friendly shape.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// NotificationConfig selects and configures the relay's external sink.
type NotificationConfig struct {
	// SlackWebhookURL, when non-empty, wires a slack.Sink. When empty
	// the daemon falls back to a logging sink.
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty"`
}

// Config is the scheduler daemon's complete configuration.
type Config struct {
	MaxConcurrency      int                `yaml:"max_concurrency,omitempty"`
	QueueCapacity       int                `yaml:"queue_capacity,omitempty"`
	ShutdownGracePeriod time.Duration      `yaml:"shutdown_grace_period,omitempty"`
	MetricsAddr         string             `yaml:"metrics_addr,omitempty"`
	Logging             LoggingConfig      `yaml:"logging,omitempty"`
	Notification        NotificationConfig `yaml:"notification,omitempty"`
}

// Default returns a Config with the scheduler's built-in defaults.
func Default() *Config {
	return &Config{
		MaxConcurrency:      backgroundwork.DefaultMaxConcurrency,
		QueueCapacity:       0,
		ShutdownGracePeriod: backgroundwork.DefaultShutdownGracePeriod,
		MetricsAddr:         ":9090",
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(log.FormatJSON),
		},
	}
}

// Load reads configuration from configPath (if non-empty and present),
// applies defaults to any unset fields, then overrides with environment
// variables, matching the teacher's file-then-env precedence.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cfg.loadFromFile(configPath); err != nil {
				return nil, &scheduleerrors.ConfigError{
					Key:    "config_file",
					Reason: fmt.Sprintf("failed to load from %s", configPath),
					Cause:  err,
				}
			}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &scheduleerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv overrides fields with SCHEDULERD_* environment variables,
// plus the unprefixed LOG_FORMAT, the same names internal/log.FromEnv
// reads for the level and format.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("SCHEDULERD_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrency = n
		}
	}
	if v := os.Getenv("SCHEDULERD_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueueCapacity = n
		}
	}
	if v := os.Getenv("SCHEDULERD_SHUTDOWN_GRACE_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ShutdownGracePeriod = d
		}
	}
	if v := os.Getenv("SCHEDULERD_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("SCHEDULERD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SCHEDULERD_SLACK_WEBHOOK_URL"); v != "" {
		c.Notification.SlackWebhookURL = v
	}
}

// Validate checks the invariants Enqueue/NewScheduler would otherwise
// reject at daemon startup, surfacing a ConfigError with a precise
// field name instead of a generic InvalidArgumentError.
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return &scheduleerrors.ConfigError{
			Key:    "max_concurrency",
			Reason: "must be a positive integer",
		}
	}
	if c.QueueCapacity < 0 {
		return &scheduleerrors.ConfigError{
			Key:    "queue_capacity",
			Reason: "must be zero (unbounded) or positive",
		}
	}
	if c.ShutdownGracePeriod <= 0 {
		return &scheduleerrors.ConfigError{
			Key:    "shutdown_grace_period",
			Reason: "must be a positive duration",
		}
	}
	return nil
}

// SchedulerConfig projects the daemon config onto backgroundwork.Config.
func (c *Config) SchedulerConfig() backgroundwork.Config {
	return backgroundwork.Config{
		MaxConcurrency:      c.MaxConcurrency,
		QueueCapacity:       c.QueueCapacity,
		ShutdownGracePeriod: c.ShutdownGracePeriod,
	}
}

// LogConfig projects the daemon config's logging section onto log.Config.
func (c *Config) LogConfig() *log.Config {
	return &log.Config{
		Level:  c.Logging.Level,
		Format: log.Format(c.Logging.Format),
		Output: os.Stderr,
	}
}

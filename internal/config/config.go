// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package config loads daemon configuration with Koanf v2 in three layers:
// struct defaults, an optional YAML file, then environment variables.
// Highest priority wins. The sink base URL and the subject id arrive from
// the external provisioning flow, usually via environment.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root daemon configuration.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	Sink     SinkConfig     `koanf:"sink"`
	Sampler  SamplerConfig  `koanf:"sampler"`
	Location LocationConfig `koanf:"location"`
	Network  NetworkConfig  `koanf:"network"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
}

// LogConfig configures the logging layer.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig configures the durable event store.
type StoreConfig struct {
	Path            string        `koanf:"path" validate:"required"`
	SyncWrites      bool          `koanf:"sync_writes"`
	RetentionWindow time.Duration `koanf:"retention_window" validate:"gt=0"`
	PurgeInterval   time.Duration `koanf:"purge_interval" validate:"gt=0"`
}

// SinkConfig configures the remote ingestion endpoint.
type SinkConfig struct {
	// BaseURL may legitimately be empty before provisioning: the daemon
	// then captures and queues but reports "no sink URL configured" on
	// every drain attempt.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	// SubjectID identifies the tracked entity to the sink.
	SubjectID string `koanf:"subject_id"`

	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	ReadTimeout    time.Duration `koanf:"read_timeout" validate:"gt=0"`
}

// SamplerConfig configures the capture loop.
type SamplerConfig struct {
	Interval       time.Duration `koanf:"interval" validate:"gt=0"`
	FixTimeout     time.Duration `koanf:"fix_timeout" validate:"gt=0"`
	GeocodeTimeout time.Duration `koanf:"geocode_timeout" validate:"gt=0"`
}

// LocationConfig selects the location sources feeding the sampler.
type LocationConfig struct {
	// FixURL is an optional HTTP endpoint serving the current position,
	// typically a gpsd bridge or companion app. Takes priority over IP
	// geolocation when set.
	FixURL string `koanf:"fix_url" validate:"omitempty,url"`

	// GeoIPURL is the IP geolocation fallback endpoint.
	GeoIPURL string `koanf:"geoip_url" validate:"omitempty,url"`

	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

// NetworkConfig configures the reachability monitor.
type NetworkConfig struct {
	ProbeInterval time.Duration `koanf:"probe_interval" validate:"gt=0"`
	ProbeTimeout  time.Duration `koanf:"probe_timeout" validate:"gt=0"`

	// ProbeAddress overrides the probe target. When empty, the target is
	// derived from the sink base URL.
	ProbeAddress string `koanf:"probe_address"`
}

// SyncConfig configures the drain coordinator.
type SyncConfig struct {
	Pace          time.Duration `koanf:"pace" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
}

// ServerConfig configures the local control/status API.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port" validate:"gt=0,lte=65535"`

	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RateLimitReqs requests per RateLimitWindow per client IP; 0 disables.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// Validate checks the configuration via struct tags plus the handful of
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Store.RetentionWindow < c.Store.PurgeInterval {
		return fmt.Errorf("store retention window %v is shorter than the purge interval %v", c.Store.RetentionWindow, c.Store.PurgeInterval)
	}
	if c.Sink.BaseURL != "" && c.Sink.SubjectID == "" {
		return fmt.Errorf("sink subject_id is required when a base URL is configured")
	}
	return nil
}

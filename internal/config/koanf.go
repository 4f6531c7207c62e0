// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"waypointd.yaml",
	"waypointd.yml",
	"/etc/waypointd/config.yaml",
	"/etc/waypointd/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "WAYPOINTD_CONFIG"

// envPrefix scopes which environment variables the loader reads.
const envPrefix = "WAYPOINTD_"

// Default returns built-in defaults for every setting. These are applied
// first, then overridden by the config file and environment.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Store: StoreConfig{
			Path:            "/data/waypointd/events",
			SyncWrites:      true,
			RetentionWindow: 30 * 24 * time.Hour,
			PurgeInterval:   1 * time.Hour,
		},
		Sink: SinkConfig{
			BaseURL:        "",
			SubjectID:      "",
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    10 * time.Second,
		},
		Sampler: SamplerConfig{
			Interval:       10 * time.Second,
			FixTimeout:     15 * time.Second,
			GeocodeTimeout: 5 * time.Second,
		},
		Location: LocationConfig{
			FixURL:         "",
			GeoIPURL:       "http://ip-api.com/json",
			RequestTimeout: 10 * time.Second,
		},
		Network: NetworkConfig{
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  5 * time.Second,
			ProbeAddress:  "",
		},
		Sync: SyncConfig{
			Pace:          750 * time.Millisecond,
			SweepInterval: 2 * time.Minute,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            8787,
			Timeout:         30 * time.Second,
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
	}
}

// Load reads configuration with layered sources, highest priority last:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. WAYPOINTD_* environment variables
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// WAYPOINTD_SINK_BASE_URL -> sink.base_url
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf paths. The
// section is everything up to the first underscore after the prefix:
//
//	WAYPOINTD_SINK_BASE_URL    -> sink.base_url
//	WAYPOINTD_STORE_PATH       -> store.path
//	WAYPOINTD_LOG_LEVEL        -> log.level
//	WAYPOINTD_SERVER_PORT      -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}

// sliceConfigPaths lists paths parsed as comma-separated slices when they
// arrive via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package provider supplies concrete location sources for the sampler.
//
// Two sources ship with the daemon:
//   - HTTPFixSource polls a local fix endpoint, typically a gpsd bridge or
//     a companion app publishing the device position.
//   - IPAPISource falls back to IP geolocation (ip-api.com style, free, no
//     API key, 45 req/min limit) when no fix endpoint is configured.
package provider

import (
	"time"

	"github.com/tomtom215/waypointd/internal/sampler"
)

// Config selects and tunes the location sources.
type Config struct {
	// FixURL is an optional HTTP endpoint returning the current position.
	// When set it takes priority over IP geolocation.
	FixURL string

	// GeoIPURL is the IP geolocation endpoint used when no fix endpoint is
	// configured. Default: http://ip-api.com/json
	GeoIPURL string

	// RequestTimeout bounds each HTTP lookup. Default: 10s.
	RequestTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.GeoIPURL == "" {
		c.GeoIPURL = "http://ip-api.com/json"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// New builds the location provider and geocoder from configuration. The
// fix endpoint wins when configured; otherwise IP geolocation serves both
// roles.
func New(cfg Config) (sampler.LocationProvider, sampler.Geocoder) {
	cfg.applyDefaults()

	geoip := NewIPAPISource(cfg.GeoIPURL, cfg.RequestTimeout)
	if cfg.FixURL != "" {
		return NewHTTPFixSource(cfg.FixURL, cfg.RequestTimeout), geoip
	}
	return geoip, geoip
}

var (
	_ sampler.LocationProvider = (*HTTPFixSource)(nil)
	_ sampler.LocationProvider = (*IPAPISource)(nil)
	_ sampler.Geocoder         = (*IPAPISource)(nil)
	_ sampler.DeviceInfo       = (*HostDeviceInfo)(nil)
)

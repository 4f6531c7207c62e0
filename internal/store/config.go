// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package store

import (
	"errors"
	"time"
)

// Config holds event store configuration.
type Config struct {
	// Path is the directory where BadgerDB stores its files. It should be
	// on a durable filesystem, not tmpfs.
	Path string

	// SyncWrites forces fsync after every write. Disable only for tests.
	SyncWrites bool

	// RetentionWindow is how long synced events are kept before the purge
	// removes them. Unsynced events are never purged.
	RetentionWindow time.Duration

	// PurgeInterval is the time between retention purge runs.
	PurgeInterval time.Duration

	// CloseTimeout is the maximum time to wait for graceful shutdown.
	CloseTimeout time.Duration

	// BadgerDB tuning.
	MemTableSize     int64
	ValueLogFileSize int64
	NumCompactors    int
	Compression      bool
	GCRatio          float64
}

// DefaultConfig returns durable defaults matching the reference retention
// of 30 days.
func DefaultConfig() Config {
	return Config{
		Path:             "/data/waypointd/events",
		SyncWrites:       true,
		RetentionWindow:  30 * 24 * time.Hour,
		PurgeInterval:    1 * time.Hour,
		CloseTimeout:     30 * time.Second,
		MemTableSize:     16 * 1024 * 1024,
		ValueLogFileSize: 64 * 1024 * 1024,
		NumCompactors:    2,
		Compression:      true,
		GCRatio:          0.5,
	}
}

// Validate checks the configuration and fills tuning fields left at zero.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("store path is required")
	}
	if c.RetentionWindow <= 0 {
		return errors.New("retention window must be positive")
	}
	if c.PurgeInterval <= 0 {
		return errors.New("purge interval must be positive")
	}
	if c.MemTableSize == 0 {
		c.MemTableSize = 16 * 1024 * 1024
	}
	if c.ValueLogFileSize == 0 {
		c.ValueLogFileSize = 64 * 1024 * 1024
	}
	// BadgerDB requires at least two compactors.
	if c.NumCompactors < 2 {
		c.NumCompactors = 2
	}
	if c.GCRatio == 0 {
		c.GCRatio = 0.5
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 30 * time.Second
	}
	return nil
}

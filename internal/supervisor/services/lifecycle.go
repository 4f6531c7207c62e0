// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package services adapts the daemon's Start/Stop components to suture's
// Serve pattern so they can run under the supervision tree.
package services

import (
	"context"
	"fmt"
)

// StartStopper is the lifecycle shape shared by the sampler, the
// connectivity monitor, the sync coordinator's sweep, and the store
// retainer. Keeping the interface here avoids import cycles between the
// supervisor and the components it runs.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// Lifecycle wraps a Start/Stop component as a supervised service.
//
// Serve starts the component, blocks until the context is canceled, then
// stops it. Stop blocks until the component's goroutines have exited, so
// suture's shutdown timeout bounds the whole teardown.
type Lifecycle struct {
	component StartStopper
	name      string
}

// NewLifecycle wraps component under the given service name.
func NewLifecycle(name string, component StartStopper) *Lifecycle {
	return &Lifecycle{component: component, name: name}
}

// NewSampler wraps the capture loop.
func NewSampler(s StartStopper) *Lifecycle {
	return NewLifecycle("sampler", s)
}

// NewConnectivityMonitor wraps the reachability prober.
func NewConnectivityMonitor(m StartStopper) *Lifecycle {
	return NewLifecycle("connectivity-monitor", m)
}

// NewSyncSweep wraps the coordinator's periodic sweep.
func NewSyncSweep(c StartStopper) *Lifecycle {
	return NewLifecycle("sync-sweep", c)
}

// NewRetainer wraps the store's retention purge loop.
func NewRetainer(r StartStopper) *Lifecycle {
	return NewLifecycle("store-retainer", r)
}

// Serve implements suture.Service. If Start fails the error is returned
// immediately and suture restarts the service per its backoff policy.
func (l *Lifecycle) Serve(ctx context.Context) error {
	if err := l.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", l.name, err)
	}

	<-ctx.Done()

	l.component.Stop()
	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it in log messages.
func (l *Lifecycle) String() string {
	return l.name
}

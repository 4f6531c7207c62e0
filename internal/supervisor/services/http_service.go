// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package services

import (
	"context"
	"fmt"
	"time"
)

// ControlServer matches the control API server's lifecycle. Start binds
// the listener and returns; Shutdown drains connections.
type ControlServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// ControlAPIService runs the control API under supervision.
type ControlAPIService struct {
	server          ControlServer
	shutdownTimeout time.Duration
	name            string
}

// NewControlAPI creates the control API service wrapper.
func NewControlAPI(server ControlServer, shutdownTimeout time.Duration) *ControlAPIService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &ControlAPIService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "control-api",
	}
}

// Serve implements suture.Service. A bind failure is returned so suture
// retries with backoff; the usual cause is a lingering socket from a
// previous instance.
func (s *ControlAPIService) Serve(ctx context.Context) error {
	if err := s.server.Start(); err != nil {
		return fmt.Errorf("control api start failed: %w", err)
	}

	<-ctx.Done()

	// The run context is already canceled; shutdown needs its own.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control api shutdown failed: %w", err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer; suture uses it in log messages.
func (s *ControlAPIService) String() string {
	return s.name
}

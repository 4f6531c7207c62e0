// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package main is the entry point for the waypointd daemon.
//
// Waypointd captures location samples on a fixed cadence, stores them
// durably in an embedded BadgerDB outbox, and drains them to a remote
// ingestion endpoint whenever connectivity allows. Captured events
// survive crashes and offline periods; delivery is at-least-once with
// idempotent acknowledgement marking.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML file, env)
//  2. Event store: BadgerDB outbox with unsynced/synced key prefixes
//  3. Dispatcher: HTTP delivery client behind a circuit breaker
//  4. Sync coordinator: single-flight drain passes with pacing
//  5. Connectivity monitor: edge-triggered drain on regained reachability
//  6. Sampler: periodic capture loop feeding the store
//  7. Control API: local status/metrics/manual-sync surface
//
// All long-lived components run under a suture supervision tree with
// data, pipeline, and api layers.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - WAYPOINTD_* environment variables
//   - Config file (waypointd.yaml or /etc/waypointd/config.yaml)
//   - Built-in defaults
//
// The sink URL and subject id come from provisioning:
//
//	export WAYPOINTD_SINK_BASE_URL=https://tracker.example.com
//	export WAYPOINTD_SINK_SUBJECT_ID=unit-42
//	./waypointd
//
// # Signal Handling
//
// The daemon shuts down gracefully on SIGINT and SIGTERM: the capture
// loop and any in-flight drain pass stop between iterations, the control
// API drains connections, and the store closes last so every captured
// event is on disk before exit.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/waypointd/internal/api"
	"github.com/tomtom215/waypointd/internal/config"
	"github.com/tomtom215/waypointd/internal/dispatch"
	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/netmon"
	"github.com/tomtom215/waypointd/internal/provider"
	"github.com/tomtom215/waypointd/internal/sampler"
	"github.com/tomtom215/waypointd/internal/store"
	"github.com/tomtom215/waypointd/internal/supervisor"
	"github.com/tomtom215/waypointd/internal/supervisor/services"
	"github.com/tomtom215/waypointd/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	logging.Info().Msg("Starting waypointd")
	if cfg.Sink.BaseURL != "" {
		logging.Info().
			Str("sink_url", cfg.Sink.BaseURL).
			Str("subject_id", cfg.Sink.SubjectID).
			Str("store_path", cfg.Store.Path).
			Msg("Configuration loaded")
	} else {
		logging.Info().
			Str("store_path", cfg.Store.Path).
			Msg("Configuration loaded (no sink configured, capture-only mode)")
	}

	// Event store opens first and closes last.
	st, err := store.Open(&store.Config{
		Path:            cfg.Store.Path,
		SyncWrites:      cfg.Store.SyncWrites,
		RetentionWindow: cfg.Store.RetentionWindow,
		PurgeInterval:   cfg.Store.PurgeInterval,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open event store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event store")
		}
	}()
	logging.Info().Str("path", cfg.Store.Path).Msg("Event store opened")

	// Delivery path: HTTP dispatcher behind a circuit breaker.
	dispatcher := dispatch.New(dispatch.Config{
		BaseURL:        cfg.Sink.BaseURL,
		ConnectTimeout: cfg.Sink.ConnectTimeout,
		ReadTimeout:    cfg.Sink.ReadTimeout,
	})
	deliverer := dispatch.NewBreakerDeliverer(dispatcher)

	coordinator := syncer.New(syncer.Config{
		Pace:          cfg.Sync.Pace,
		SweepInterval: cfg.Sync.SweepInterval,
	}, st, deliverer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Regained reachability triggers a drain pass.
	prober := buildProber(cfg)
	monitor := netmon.New(netmon.Config{
		ProbeInterval: cfg.Network.ProbeInterval,
		ProbeTimeout:  cfg.Network.ProbeTimeout,
	}, prober, func() {
		coordinator.Drain(ctx, syncer.TriggerConnectivity)
	})

	locProvider, geocoder := provider.New(provider.Config{
		FixURL:         cfg.Location.FixURL,
		GeoIPURL:       cfg.Location.GeoIPURL,
		RequestTimeout: cfg.Location.RequestTimeout,
	})

	smp := sampler.New(sampler.Config{
		SubjectID:      cfg.Sink.SubjectID,
		Interval:       cfg.Sampler.Interval,
		FixTimeout:     cfg.Sampler.FixTimeout,
		GeocodeTimeout: cfg.Sampler.GeocodeTimeout,
	}, locProvider, geocoder, provider.NewHostDeviceInfo(), st, deliverer, monitor.Online)

	retainer := store.NewRetainer(st)

	// Supervision tree: data, pipeline, api layers.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(services.NewRetainer(retainer))
	tree.AddPipelineService(services.NewConnectivityMonitor(monitor))
	tree.AddPipelineService(services.NewSyncSweep(coordinator))
	tree.AddPipelineService(services.NewSampler(smp))

	if cfg.Server.Enabled {
		server := api.New(api.Config{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			Timeout:         cfg.Server.Timeout,
			RateLimitReqs:   cfg.Server.RateLimitReqs,
			RateLimitWindow: cfg.Server.RateLimitWindow,
			CORSOrigins:     cfg.Server.CORSOrigins,
		}, st, coordinator, monitor, deliverer)
		tree.AddAPIService(services.NewControlAPI(server, 10*time.Second))
	} else {
		logging.Info().Msg("Control API disabled")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Waypointd stopped")
}

// buildProber picks the reachability probe target: the explicit override
// when set, otherwise the sink host. With neither configured the probe
// always reports offline, matching capture-only mode.
func buildProber(cfg *config.Config) netmon.Prober {
	if cfg.Network.ProbeAddress != "" {
		return netmon.NewDialProber(cfg.Network.ProbeAddress, cfg.Network.ProbeTimeout)
	}
	if cfg.Sink.BaseURL != "" {
		return netmon.NewSinkProber(cfg.Sink.BaseURL, cfg.Network.ProbeTimeout)
	}
	return netmon.ProbeFunc(func(ctx context.Context) bool { return false })
}

// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package metrics exposes Prometheus instrumentation for the capture and
// sync pipeline. Metrics are served at /metrics on the control API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturesTotal counts location samples appended to the store.
	CapturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waypointd_captures_total",
		Help: "Total number of location samples captured and stored",
	})

	// CaptureSkipsTotal counts ticks where no fix arrived within the timeout.
	CaptureSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waypointd_capture_skips_total",
		Help: "Total number of capture ticks skipped because no fix was available",
	})

	// StoreWriteFailures counts append operations that returned a storage error.
	StoreWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waypointd_store_write_failures_total",
		Help: "Total number of failed store appends",
	})

	// PendingEvents is the current number of unsynced events.
	PendingEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waypointd_pending_events",
		Help: "Current number of unsynced location events in the store",
	})

	// StoreSizeBytes is the estimated on-disk size of the event store.
	StoreSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waypointd_store_size_bytes",
		Help: "Estimated size of the event store in bytes",
	})

	// DeliveriesTotal counts delivery attempts by result (delivered, failed, rejected).
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waypointd_deliveries_total",
		Help: "Total number of delivery attempts by result",
	}, []string{"result"})

	// DrainPassesTotal counts drain passes by trigger (connectivity, manual, sweep, capture).
	DrainPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "waypointd_drain_passes_total",
		Help: "Total number of drain passes by trigger",
	}, []string{"trigger"})

	// DrainDuration observes how long a full drain pass takes.
	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "waypointd_drain_duration_seconds",
		Help:    "Duration of drain passes in seconds",
		Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
	})

	// DrainsCoalesced counts triggers dropped because a pass was in flight.
	DrainsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waypointd_drains_coalesced_total",
		Help: "Total number of drain triggers coalesced into an in-flight pass",
	})

	// PurgedEvents counts synced events removed by the retention purge.
	PurgedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waypointd_purged_events_total",
		Help: "Total number of synced events removed by retention purge",
	})

	// BreakerState is the dispatcher circuit breaker state (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waypointd_breaker_state",
		Help: "Dispatcher circuit breaker state: 0=closed, 1=half-open, 2=open",
	})

	// Reachable is 1 while the sink is considered reachable.
	Reachable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waypointd_reachable",
		Help: "Whether the network probe currently considers the sink reachable",
	})
)

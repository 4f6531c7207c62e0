// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/syncer"
)

// StatusResponse is the payload of GET /api/v1/status and the websocket
// status push.
type StatusResponse struct {
	Online       bool            `json:"online"`
	Draining     bool            `json:"draining"`
	PendingCount int             `json:"pending_count"`
	SyncedCount  int64           `json:"synced_count"`
	StoreBytes   int64           `json:"store_bytes"`
	BreakerState string          `json:"breaker_state"`
	LastSync     *syncer.Summary `json:"last_sync,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Handler implements the control API endpoints.
type Handler struct {
	stats   EventStats
	drainer Drainer
	reach   Reachability
	breaker BreakerStater
}

// NewHandler creates the endpoint handler set.
func NewHandler(stats EventStats, drainer Drainer, reach Reachability, breaker BreakerStater) *Handler {
	return &Handler{
		stats:   stats,
		drainer: drainer,
		reach:   reach,
		breaker: breaker,
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot(r))
}

// SyncNow handles POST /api/v1/sync. It runs a manual drain pass
// synchronously and returns its summary. A pass already in flight is
// reported as coalesced, not an error.
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	summary := h.drainer.Drain(r.Context(), syncer.TriggerManual)
	writeJSON(w, http.StatusOK, summary)
}

// snapshot assembles the current status view. Failures to count the
// backlog degrade to -1 rather than failing the whole response.
func (h *Handler) snapshot(r *http.Request) StatusResponse {
	pending, err := h.stats.CountUnsynced(r.Context())
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count pending events for status")
		pending = -1
	}
	st := h.stats.Stats()

	return StatusResponse{
		Online:       h.reach.Online(),
		Draining:     h.drainer.Draining(),
		PendingCount: pending,
		SyncedCount:  st.SyncedCount,
		StoreBytes:   st.DBSizeBytes,
		BreakerState: breakerStateName(h.breaker.State()),
		LastSync:     h.drainer.LastSummary(),
		Timestamp:    time.Now().UTC(),
	}
}

func breakerStateName(state gobreaker.State) string {
	switch state {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypointd/internal/store"
	"github.com/tomtom215/waypointd/internal/syncer"
)

type fakeStats struct {
	pending  int
	countErr error
	stats    store.Stats
}

func (f *fakeStats) CountUnsynced(ctx context.Context) (int, error) {
	return f.pending, f.countErr
}

func (f *fakeStats) Stats() store.Stats { return f.stats }

type fakeDrainer struct {
	summary  syncer.Summary
	last     *syncer.Summary
	draining bool
	triggers []string
}

func (f *fakeDrainer) Drain(ctx context.Context, trigger string) syncer.Summary {
	f.triggers = append(f.triggers, trigger)
	return f.summary
}

func (f *fakeDrainer) LastSummary() *syncer.Summary { return f.last }
func (f *fakeDrainer) Draining() bool               { return f.draining }

type fakeReach struct{ online bool }

func (f *fakeReach) Online() bool { return f.online }

type fakeBreaker struct{ state gobreaker.State }

func (f *fakeBreaker) State() gobreaker.State { return f.state }

func newTestServer(stats *fakeStats, drainer *fakeDrainer, reach *fakeReach, breaker *fakeBreaker) *httptest.Server {
	srv := New(Config{}, stats, drainer, reach, breaker)
	return httptest.NewServer(srv.Router())
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(&fakeStats{}, &fakeDrainer{}, &fakeReach{}, &fakeBreaker{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	last := &syncer.Summary{
		PassID:    "ab12cd34",
		Trigger:   syncer.TriggerSweep,
		Attempted: 4,
		Succeeded: 4,
		Message:   "synced 4 of 4 locations",
		StartedAt: time.Now().Add(-time.Minute),
	}
	stats := &fakeStats{
		pending: 3,
		stats:   store.Stats{UnsyncedCount: 3, SyncedCount: 17, DBSizeBytes: 4096},
	}
	ts := newTestServer(stats, &fakeDrainer{last: last}, &fakeReach{online: true}, &fakeBreaker{state: gobreaker.StateClosed})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET /api/v1/status failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !got.Online {
		t.Error("Online = false, want true")
	}
	if got.PendingCount != 3 {
		t.Errorf("PendingCount = %d, want 3", got.PendingCount)
	}
	if got.SyncedCount != 17 {
		t.Errorf("SyncedCount = %d, want 17", got.SyncedCount)
	}
	if got.StoreBytes != 4096 {
		t.Errorf("StoreBytes = %d, want 4096", got.StoreBytes)
	}
	if got.BreakerState != "closed" {
		t.Errorf("BreakerState = %q, want closed", got.BreakerState)
	}
	if got.LastSync == nil || got.LastSync.PassID != "ab12cd34" {
		t.Errorf("LastSync = %+v", got.LastSync)
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestStatusDegradesOnCountError(t *testing.T) {
	stats := &fakeStats{countErr: errors.New("store closed")}
	ts := newTestServer(stats, &fakeDrainer{}, &fakeReach{}, &fakeBreaker{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET /api/v1/status failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.PendingCount != -1 {
		t.Errorf("PendingCount = %d, want -1 on count error", got.PendingCount)
	}
}

func TestSyncTriggersManualDrain(t *testing.T) {
	drainer := &fakeDrainer{
		summary: syncer.Summary{
			PassID:    "deadbeef",
			Trigger:   syncer.TriggerManual,
			Attempted: 2,
			Succeeded: 2,
			Message:   "synced 2 of 2 locations",
		},
	}
	ts := newTestServer(&fakeStats{}, drainer, &fakeReach{online: true}, &fakeBreaker{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/v1/sync failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(drainer.triggers) != 1 || drainer.triggers[0] != syncer.TriggerManual {
		t.Errorf("triggers = %v, want [manual]", drainer.triggers)
	}
	var got syncer.Summary
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", got.Succeeded)
	}
}

func TestSyncCoalescedStillOK(t *testing.T) {
	drainer := &fakeDrainer{
		summary:  syncer.Summary{Coalesced: true, Message: "sync already in progress"},
		draining: true,
	}
	ts := newTestServer(&fakeStats{}, drainer, &fakeReach{online: true}, &fakeBreaker{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/v1/sync failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got syncer.Summary
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !got.Coalesced {
		t.Error("Coalesced = false, want true")
	}
}

func TestBreakerStateNames(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  string
	}{
		{gobreaker.StateClosed, "closed"},
		{gobreaker.StateHalfOpen, "half-open"},
		{gobreaker.StateOpen, "open"},
	}
	for _, tt := range tests {
		if got := breakerStateName(tt.state); got != tt.want {
			t.Errorf("breakerStateName(%v) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRateLimitEnforced(t *testing.T) {
	srv := New(Config{RateLimitReqs: 2, RateLimitWindow: time.Minute},
		&fakeStats{}, &fakeDrainer{}, &fakeReach{}, &fakeBreaker{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var lastStatus int
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/api/v1/status")
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		resp.Body.Close()
		lastStatus = resp.StatusCode
	}
	if lastStatus != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want 429", lastStatus)
	}
}

func TestContentTypeJSON(t *testing.T) {
	ts := newTestServer(&fakeStats{}, &fakeDrainer{}, &fakeReach{}, &fakeBreaker{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

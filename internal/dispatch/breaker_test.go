// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package dispatch

import (
	"context"
	"errors"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypointd/internal/event"
)

// fakeDeliverer counts calls and fails on demand.
type fakeDeliverer struct {
	calls      int
	failing    bool
	configured bool
}

func (f *fakeDeliverer) Deliver(ctx context.Context, ev *event.LocationEvent) error {
	f.calls++
	if f.failing {
		return ErrDeliveryFailed
	}
	return nil
}

func (f *fakeDeliverer) Configured() bool { return f.configured }

func TestBreakerPassesThrough(t *testing.T) {
	fake := &fakeDeliverer{configured: true}
	b := NewBreakerDeliverer(fake)

	if err := b.Deliver(context.Background(), testEvent()); err != nil {
		t.Errorf("Deliver() failed: %v", err)
	}
	if fake.calls != 1 {
		t.Errorf("expected 1 underlying call, got %d", fake.calls)
	}
	if !b.Configured() {
		t.Error("Configured() should delegate to the wrapped deliverer")
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("fresh breaker should be closed, got %v", b.State())
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	fake := &fakeDeliverer{configured: true, failing: true}
	b := NewBreakerDeliverer(fake)
	ctx := context.Background()

	// The trip condition needs at least 10 requests at a 60% failure rate.
	for i := 0; i < 10; i++ {
		if err := b.Deliver(ctx, testEvent()); !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("attempt %d: expected ErrDeliveryFailed, got %v", i, err)
		}
	}

	if b.State() != gobreaker.StateOpen {
		t.Fatalf("breaker should be open after 10 consecutive failures, got %v", b.State())
	}

	// Rejected attempts never reach the sink but still report failure, so
	// the coordinator leaves events unsynced.
	before := fake.calls
	err := b.Deliver(ctx, testEvent())
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Errorf("expected ErrDeliveryFailed while open, got %v", err)
	}
	if fake.calls != before {
		t.Errorf("open breaker must short-circuit, underlying calls went %d -> %d", before, fake.calls)
	}
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	fake := &fakeDeliverer{configured: true}
	b := NewBreakerDeliverer(fake)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := b.Deliver(ctx, testEvent()); err != nil {
			t.Fatalf("Deliver() failed: %v", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("breaker should stay closed on success, got %v", b.State())
	}
}

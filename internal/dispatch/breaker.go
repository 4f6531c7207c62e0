// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/waypointd/internal/event"
	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/metrics"
)

const (
	breakerInterval = 1 * time.Minute
	breakerTimeout  = 2 * time.Minute
)

// Deliverer is the single-event delivery contract consumed by the sampler
// and the sync coordinator.
type Deliverer interface {
	Deliver(ctx context.Context, ev *event.LocationEvent) error
	Configured() bool
}

// BreakerDeliverer wraps a Deliverer with a circuit breaker so a dead or
// slow sink does not burn a timeout per event during a long drain pass.
// A rejected call counts as a delivery failure: the event stays unsynced
// and the next drain retries it once the breaker has recovered.
//
// The breaker keeps real time internally. Tests exercise the wrapped
// dispatcher directly rather than faking breaker clocks.
type BreakerDeliverer struct {
	next Deliverer
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerDeliverer wraps next with a circuit breaker. The breaker opens
// after a 60% failure rate over at least 10 requests, waits two minutes
// before probing, and allows three requests in half-open state.
func NewBreakerDeliverer(next Deliverer) *BreakerDeliverer {
	settings := gobreaker.Settings{
		Name:        "location-sink",
		MaxRequests: 3,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.BreakerState.Set(stateToFloat(to))
		},
	}

	metrics.BreakerState.Set(stateToFloat(gobreaker.StateClosed))

	return &BreakerDeliverer{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Deliver attempts delivery through the breaker.
func (b *BreakerDeliverer) Deliver(ctx context.Context, ev *event.LocationEvent) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Deliver(ctx, ev)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.DeliveriesTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: circuit open: %v", ErrDeliveryFailed, err)
	}
	return err
}

// Configured reports whether the underlying dispatcher has a base URL.
func (b *BreakerDeliverer) Configured() bool {
	return b.next.Configured()
}

// State returns the current breaker state for the status API.
func (b *BreakerDeliverer) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

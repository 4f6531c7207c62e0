// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package syncer drains the backlog of unsynced events. A drain pass reads
// every unsynced event, attempts delivery sequentially most-recent first
// with a pacing delay between attempts, and marks each success durably
// before moving on. Triggers are the connectivity rising edge, the manual
// entry point, and a periodic sweep; concurrent triggers coalesce into the
// pass already in flight.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/waypointd/internal/dispatch"
	"github.com/tomtom215/waypointd/internal/event"
	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/metrics"
)

// Drain triggers, used for logging and metrics labels.
const (
	TriggerConnectivity = "connectivity"
	TriggerManual       = "manual"
	TriggerSweep        = "sweep"
)

// EventStore is the slice of the store the coordinator needs.
type EventStore interface {
	ListUnsynced(ctx context.Context) ([]*event.LocationEvent, error)
	MarkSynced(ctx context.Context, ids ...uint64) error
}

// Summary describes the outcome of one drain pass. It is what the UI layer
// sees for "Sync Now".
type Summary struct {
	// PassID correlates the summary with the pass's log lines.
	PassID string `json:"pass_id"`

	// Trigger names what started the pass.
	Trigger string `json:"trigger"`

	// Attempted and Succeeded count delivery attempts in this pass.
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`

	// Coalesced is true when the trigger was dropped because a pass was
	// already in flight; no new pass ran.
	Coalesced bool `json:"coalesced"`

	Message   string        `json:"message"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Config holds coordinator configuration.
type Config struct {
	// Pace is the fixed delay between consecutive delivery attempts inside
	// a pass, to avoid overwhelming the sink. Default: 750ms.
	Pace time.Duration

	// SweepInterval is the cadence of the background sweep. Default: 2m.
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Pace <= 0 {
		c.Pace = 750 * time.Millisecond
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Minute
	}
}

// Coordinator orchestrates drain passes. Only one pass executes at a time;
// the state machine per pass is Idle -> Draining -> Idle with no failed
// terminal state, because unsynced rows are retried naturally on the next
// trigger.
type Coordinator struct {
	config    Config
	store     EventStore
	deliverer dispatch.Deliverer

	draining atomic.Bool

	summaryMu   sync.RWMutex
	lastSummary *Summary

	// Sweep loop control.
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	loopMu  sync.Mutex
	running bool
}

// New creates a coordinator.
func New(cfg Config, store EventStore, deliverer dispatch.Deliverer) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		config:    cfg,
		store:     store,
		deliverer: deliverer,
	}
}

// Drain runs one full pass over the unsynced backlog. It is safe to call
// from any goroutine; if a pass is already in flight, the call returns a
// coalesced summary immediately without queuing.
func (c *Coordinator) Drain(ctx context.Context, trigger string) Summary {
	if !c.draining.CompareAndSwap(false, true) {
		metrics.DrainsCoalesced.Inc()
		logging.Debug().Str("trigger", trigger).Msg("drain already in flight, trigger coalesced")
		return Summary{
			Trigger:   trigger,
			Coalesced: true,
			Message:   "sync already in progress",
			StartedAt: time.Now(),
		}
	}
	defer c.draining.Store(false)

	summary := c.drainLocked(ctx, trigger)

	c.summaryMu.Lock()
	c.lastSummary = &summary
	c.summaryMu.Unlock()

	return summary
}

// drainLocked performs the pass. Caller holds the draining flag.
func (c *Coordinator) drainLocked(ctx context.Context, trigger string) Summary {
	start := time.Now()
	summary := Summary{
		PassID:    uuid.New().String()[:8],
		Trigger:   trigger,
		StartedAt: start,
	}

	metrics.DrainPassesTotal.WithLabelValues(trigger).Inc()
	defer func() {
		summary.Duration = time.Since(start)
		metrics.DrainDuration.Observe(summary.Duration.Seconds())
	}()

	if !c.deliverer.Configured() {
		summary.Message = "no sink URL configured"
		logging.Warn().Str("pass_id", summary.PassID).Msg("drain skipped: no sink URL configured")
		return summary
	}

	events, err := c.store.ListUnsynced(ctx)
	if err != nil {
		summary.Message = fmt.Sprintf("failed to read backlog: %v", err)
		logging.Error().Err(err).Str("pass_id", summary.PassID).Msg("drain failed to list unsynced events")
		return summary
	}
	if len(events) == 0 {
		summary.Message = "no data to sync"
		return summary
	}

	logging.Info().
		Str("pass_id", summary.PassID).
		Str("trigger", trigger).
		Int("backlog", len(events)).
		Msg("drain pass started")

	// The limiter allows the first attempt immediately, then enforces the
	// pacing delay between consecutive attempts.
	limiter := rate.NewLimiter(rate.Every(c.config.Pace), 1)

	for _, ev := range events {
		// Soft cancellation: checked between iterations, never mid-attempt.
		if ctx.Err() != nil {
			summary.Message = fmt.Sprintf("interrupted: synced %d of %d locations", summary.Succeeded, len(events))
			logging.Info().Str("pass_id", summary.PassID).Msg("drain pass interrupted")
			return summary
		}
		if err := limiter.Wait(ctx); err != nil {
			summary.Message = fmt.Sprintf("interrupted: synced %d of %d locations", summary.Succeeded, len(events))
			return summary
		}

		summary.Attempted++
		if err := c.deliverer.Deliver(ctx, ev); err != nil {
			logging.Debug().
				Err(err).
				Str("pass_id", summary.PassID).
				Uint64("event_id", ev.ID).
				Msg("drain delivery failed, event stays unsynced")
			continue
		}

		// Mark durably before the next attempt so a crash mid-pass never
		// loses an acknowledged sync.
		if err := c.store.MarkSynced(ctx, ev.ID); err != nil {
			logging.Error().
				Err(err).
				Str("pass_id", summary.PassID).
				Uint64("event_id", ev.ID).
				Msg("drain failed to mark event synced")
			continue
		}
		summary.Succeeded++
	}

	summary.Message = fmt.Sprintf("synced %d of %d locations", summary.Succeeded, len(events))
	logging.Info().
		Str("pass_id", summary.PassID).
		Int("attempted", summary.Attempted).
		Int("succeeded", summary.Succeeded).
		Msg("drain pass finished")
	return summary
}

// LastSummary returns the most recent completed pass summary, or nil if no
// pass has run yet. Coalesced triggers do not overwrite it.
func (c *Coordinator) LastSummary() *Summary {
	c.summaryMu.RLock()
	defer c.summaryMu.RUnlock()
	if c.lastSummary == nil {
		return nil
	}
	cp := *c.lastSummary
	return &cp
}

// Draining reports whether a pass is currently in flight.
func (c *Coordinator) Draining() bool {
	return c.draining.Load()
}

// Start begins the periodic background sweep.
func (c *Coordinator) Start(ctx context.Context) error {
	c.loopMu.Lock()
	if c.running {
		c.loopMu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.loopMu.Unlock()

	c.wg.Add(1)
	go c.runSweep()

	logging.Info().Dur("interval", c.config.SweepInterval).Msg("sync sweep started")
	return nil
}

// Stop cancels the sweep loop and waits for it. An in-flight pass observes
// the cancellation between iterations and winds down.
func (c *Coordinator) Stop() {
	c.loopMu.Lock()
	if !c.running {
		c.loopMu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.loopMu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("sync sweep stopped")
}

// IsRunning returns whether the sweep loop is active.
func (c *Coordinator) IsRunning() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.running
}

func (c *Coordinator) runSweep() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.Drain(c.ctx, TriggerSweep)
		}
	}
}

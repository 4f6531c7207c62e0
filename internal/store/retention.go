// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package store

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/waypointd/internal/logging"
)

// Retainer runs the periodic retention purge: synced events older than the
// retention window are deleted, then value log GC reclaims the space.
type Retainer struct {
	store  *Store
	config Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewRetainer creates a retention loop for the store.
func NewRetainer(store *Store) *Retainer {
	return &Retainer{
		store:  store,
		config: store.config,
	}
}

// Start begins the background purge loop.
func (r *Retainer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()

	logging.Info().
		Dur("interval", r.config.PurgeInterval).
		Dur("retention", r.config.RetentionWindow).
		Msg("retention purge started")
	return nil
}

// Stop gracefully stops the purge loop.
func (r *Retainer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	logging.Info().Msg("retention purge stopped")
}

// IsRunning returns whether the purge loop is active.
func (r *Retainer) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Retainer) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.purge()
		}
	}
}

// purge removes synced events past retention and runs GC. Failures are
// logged and retried on the next tick; they never stop the loop.
func (r *Retainer) purge() {
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	cutoff := time.Now().Add(-r.config.RetentionWindow).UnixMilli()

	deleted, err := r.store.PurgeSyncedOlderThan(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("retention purge failed")
		return
	}

	if err := r.store.RunGC(); err != nil {
		logging.Error().Err(err).Msg("retention GC error")
	}

	r.mu.Lock()
	r.lastRun = time.Now()
	r.mu.Unlock()

	if deleted > 0 {
		logging.Info().Int("deleted", deleted).Int64("cutoff_millis", cutoff).Msg("retention purge removed events")
	}
}

// RunNow triggers an immediate purge run.
func (r *Retainer) RunNow() {
	r.purge()
}

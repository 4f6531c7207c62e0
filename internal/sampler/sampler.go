// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package sampler captures location readings on a fixed cadence and appends
// them to the event store. The platform's location and geocoding machinery
// sits behind small interfaces modelled as blocking calls with timeouts;
// the sampler itself never sees a callback.
package sampler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/waypointd/internal/dispatch"
	"github.com/tomtom215/waypointd/internal/event"
	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/metrics"
)

// Sentinel place labels used when reverse geocoding returns nothing or
// fails. Matches the labels the sink already knows.
const (
	PlaceUnknown = "Unknown Address"
	PlaceError   = "Location Error"
)

// Fix is one location reading from the provider.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float32
}

// LocationProvider produces one location fix per request. A (nil, nil)
// return means no fix arrived within the provider's own timeout; that is
// an absence, not an error, and the tick is skipped.
type LocationProvider interface {
	RequestFix(ctx context.Context) (*Fix, error)
}

// Geocoder resolves a human-readable place label, best effort.
type Geocoder interface {
	ResolvePlaceName(ctx context.Context, lat, lon float64) (string, error)
}

// DeviceInfo supplies diagnostic metadata recorded alongside each sample.
type DeviceInfo interface {
	BatteryLevel() int
	NetworkType() string
}

// EventStore is the slice of the store the sampler needs.
type EventStore interface {
	Append(ctx context.Context, ev *event.LocationEvent) (uint64, error)
	MarkSynced(ctx context.Context, ids ...uint64) error
}

// Config holds sampler configuration.
type Config struct {
	// SubjectID identifies the tracked entity in every event.
	SubjectID string

	// Interval is the capture cadence. The first capture happens
	// immediately when the sampler starts. Default: 10s.
	Interval time.Duration

	// FixTimeout bounds a single fix request. Default: 15s.
	FixTimeout time.Duration

	// GeocodeTimeout bounds a reverse-geocode lookup. Default: 5s.
	GeocodeTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.FixTimeout <= 0 {
		c.FixTimeout = 15 * time.Second
	}
	if c.GeocodeTimeout <= 0 {
		c.GeocodeTimeout = 5 * time.Second
	}
}

// Sampler is the periodic capture loop.
type Sampler struct {
	config    Config
	provider  LocationProvider
	geocoder  Geocoder
	device    DeviceInfo
	store     EventStore
	deliverer dispatch.Deliverer

	// online is consulted before the fire-and-forget delivery hint. It is a
	// best-effort short-circuit, not a gate: a stale true only costs one
	// failed request.
	online func() bool

	// inFlight guards against overlapping fix requests.
	inFlight atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a sampler. online may be nil, in which case the delivery
// hint is always attempted.
func New(cfg Config, provider LocationProvider, geocoder Geocoder, device DeviceInfo, store EventStore, deliverer dispatch.Deliverer, online func() bool) *Sampler {
	cfg.applyDefaults()
	if online == nil {
		online = func() bool { return true }
	}
	if device == nil {
		device = noDeviceInfo{}
	}
	return &Sampler{
		config:    cfg,
		provider:  provider,
		geocoder:  geocoder,
		device:    device,
		store:     store,
		deliverer: deliverer,
		online:    online,
	}
}

// Start begins the capture loop. The first capture fires immediately,
// subsequent ones on the configured interval.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	logging.Info().
		Dur("interval", s.config.Interval).
		Str("subject_id", s.config.SubjectID).
		Msg("sampler started")
	return nil
}

// Stop cancels pending timers and waits for the loop to exit. A capture in
// flight finishes; no new one starts.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info().Msg("sampler stopped")
}

// IsRunning returns whether the capture loop is active.
func (s *Sampler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sampler) run() {
	defer s.wg.Done()

	// Immediate first capture, then the steady cadence.
	s.captureOnce(s.ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.captureOnce(s.ctx)
		}
	}
}

// captureOnce performs one capture tick. Failures are contained here: they
// are logged and the loop keeps ticking on schedule.
func (s *Sampler) captureOnce(ctx context.Context) {
	// At most one outstanding fix request at a time.
	if !s.inFlight.CompareAndSwap(false, true) {
		logging.Trace().Msg("sampler: fix request already in flight, skipping tick")
		return
	}
	defer s.inFlight.Store(false)

	fixCtx, cancel := context.WithTimeout(ctx, s.config.FixTimeout)
	fix, err := s.provider.RequestFix(fixCtx)
	cancel()

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		// No fix within the timeout. Absence, not an error.
		metrics.CaptureSkipsTotal.Inc()
		logging.Debug().Msg("sampler: no fix within timeout, tick skipped")
		return
	case err != nil:
		metrics.CaptureSkipsTotal.Inc()
		logging.Warn().Err(err).Msg("sampler: fix request failed, tick skipped")
		return
	case fix == nil:
		metrics.CaptureSkipsTotal.Inc()
		logging.Debug().Msg("sampler: provider returned no fix, tick skipped")
		return
	}

	ev := &event.LocationEvent{
		SubjectID:    s.config.SubjectID,
		Latitude:     fix.Latitude,
		Longitude:    fix.Longitude,
		PlaceName:    s.resolvePlace(ctx, fix.Latitude, fix.Longitude),
		CapturedAt:   time.Now().UnixMilli(),
		Accuracy:     fix.Accuracy,
		BatteryLevel: s.device.BatteryLevel(),
		NetworkType:  s.device.NetworkType(),
	}

	id, err := s.store.Append(ctx, ev)
	if err != nil {
		// Persistence faults are logged, never fatal to the loop.
		logging.Error().Err(err).Msg("sampler: failed to append event")
		return
	}

	logging.Debug().
		Uint64("event_id", id).
		Float64("lat", fix.Latitude).
		Float64("lon", fix.Longitude).
		Msg("sampler: event appended")

	// Best-effort try-now hint, independent of the coordinator's sweep.
	s.hintDeliver(ev)
}

// resolvePlace reverse-geocodes best effort, substituting a sentinel label
// rather than blocking or failing the capture.
func (s *Sampler) resolvePlace(ctx context.Context, lat, lon float64) string {
	if s.geocoder == nil {
		return PlaceUnknown
	}

	geoCtx, cancel := context.WithTimeout(ctx, s.config.GeocodeTimeout)
	defer cancel()

	place, err := s.geocoder.ResolvePlaceName(geoCtx, lat, lon)
	if err != nil {
		logging.Debug().Err(err).Msg("sampler: geocode failed")
		return PlaceError
	}
	if place == "" {
		return PlaceUnknown
	}
	return place
}

// hintDeliver fires one asynchronous delivery attempt for a freshly
// captured event. Failure is silent; the event is already durable and the
// coordinator will retry it.
func (s *Sampler) hintDeliver(ev *event.LocationEvent) {
	if s.deliverer == nil || !s.deliverer.Configured() || !s.online() {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx := s.ctx
		if err := s.deliverer.Deliver(ctx, ev); err != nil {
			logging.Debug().Err(err).Uint64("event_id", ev.ID).Msg("sampler: try-now delivery failed")
			return
		}
		if err := s.store.MarkSynced(ctx, ev.ID); err != nil {
			logging.Error().Err(err).Uint64("event_id", ev.ID).Msg("sampler: failed to mark event synced")
		}
	}()
}

// noDeviceInfo is the fallback when no metadata source is wired.
type noDeviceInfo struct{}

func (noDeviceInfo) BatteryLevel() int   { return -1 }
func (noDeviceInfo) NetworkType() string { return "UNKNOWN" }

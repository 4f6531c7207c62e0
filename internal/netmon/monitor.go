// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package netmon watches network reachability and turns the raw signal into
// two edge-triggered transitions: became reachable and became unreachable.
// A rising edge fires the sync coordinator's drain exactly once; repeated
// reachable observations without an intervening loss fire nothing.
package netmon

import (
	"context"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/metrics"
)

// Prober answers whether the network currently looks reachable. The probe
// is a blocking call with a bounded timeout; the platform's asynchronous
// connectivity machinery stays behind this boundary.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

// Probe implements Prober.
func (f ProbeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// DialProber probes reachability by opening a TCP connection to a host.
type DialProber struct {
	address string
	timeout time.Duration
}

// NewDialProber creates a prober that dials the given host:port.
func NewDialProber(address string, timeout time.Duration) *DialProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DialProber{address: address, timeout: timeout}
}

// NewSinkProber derives a dial prober from the sink base URL, defaulting
// the port from the scheme. Returns nil if the URL cannot be parsed.
func NewSinkProber(baseURL string, timeout time.Duration) *DialProber {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}
	return NewDialProber(host, timeout)
}

// Probe implements Prober.
func (p *DialProber) Probe(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Config holds monitor configuration.
type Config struct {
	// ProbeInterval is the time between reachability probes. Default: 15s.
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single probe. Default: 5s.
	ProbeTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 15 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
}

// Monitor polls the prober and maintains the reachability flag. On an
// unreachable-to-reachable transition it invokes onReachable once.
type Monitor struct {
	config Config
	prober Prober

	// onReachable is invoked asynchronously on each rising edge.
	onReachable func()

	online atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New creates a monitor. onReachable may be nil.
func New(cfg Config, prober Prober, onReachable func()) *Monitor {
	cfg.applyDefaults()
	if onReachable == nil {
		onReachable = func() {}
	}
	return &Monitor{
		config:      cfg,
		prober:      prober,
		onReachable: onReachable,
	}
}

// Online reports the last observed reachability state. Callers use this as
// a best-effort short-circuit before initiating sends, never as a hard
// gate: a send attempted while offline simply fails.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Start begins the probe loop. The initial state is probed immediately; an
// initially reachable network counts as a rising edge so a backlog from a
// previous offline run drains at startup.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	logging.Info().Dur("interval", m.config.ProbeInterval).Msg("connectivity monitor started")
	return nil
}

// Stop unregisters from the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	logging.Info().Msg("connectivity monitor stopped")
}

// IsRunning returns whether the probe loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run() {
	defer m.wg.Done()

	m.observe()

	ticker := time.NewTicker(m.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.observe()
		}
	}
}

// observe runs one probe and fires the edge callback on a transition to
// reachable. Only transitions fire; steady state does not.
func (m *Monitor) observe() {
	probeCtx, cancel := context.WithTimeout(m.ctx, m.config.ProbeTimeout)
	reachable := m.prober.Probe(probeCtx)
	cancel()

	was := m.online.Swap(reachable)
	if reachable {
		metrics.Reachable.Set(1)
	} else {
		metrics.Reachable.Set(0)
	}

	switch {
	case reachable && !was:
		logging.Info().Msg("network became reachable")
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.onReachable()
		}()
	case !reachable && was:
		logging.Info().Msg("network became unreachable")
	}
}

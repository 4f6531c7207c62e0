// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package dispatch delivers single location events to the remote sink and
// interprets the result. Delivery is all-or-nothing: an event counts as
// delivered only when the sink returns HTTP 2xx AND its body carries the
// application-level success marker. Everything else, transport errors and
// timeouts included, leaves the event unsynced for the next drain pass.
// Retry policy lives entirely in the sync coordinator; this package never
// retries inline.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypointd/internal/event"
	"github.com/tomtom215/waypointd/internal/logging"
	"github.com/tomtom215/waypointd/internal/metrics"
)

// sinkPath is the fixed ingestion path joined onto the configured base URL.
const sinkPath = "api/livelocation"

// maxResponseBytes bounds how much of the sink response is read when
// checking for the success marker.
const maxResponseBytes = 1 << 20

// Errors returned by Deliver.
var (
	// ErrNoBaseURL means the sink base URL has not been configured yet.
	ErrNoBaseURL = errors.New("no sink base URL configured")

	// ErrDeliveryFailed covers every unacknowledged outcome: transport
	// failure, timeout, non-2xx status, or a body without the success marker.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// The sink reports success inside the body, not just the status line. Both
// quote forms have been observed in the wild, so both are accepted. This is
// a deliberately narrow substring policy; see the docs for the caveats.
var successMarkers = [][]byte{
	[]byte(`"status":"success"`),
	[]byte(`'status':'success'`),
}

// Config holds dispatcher configuration.
type Config struct {
	// BaseURL is the sink base URL, e.g. https://tracker.example.com.
	// Read-only after the dispatcher is constructed.
	BaseURL string

	// ConnectTimeout bounds connection establishment. Default: 10s.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the whole request including response read.
	// Default: 10s.
	ReadTimeout time.Duration
}

// Dispatcher posts events to the sink. It holds no mutable state beyond
// the configured client, so it is safe for concurrent use.
type Dispatcher struct {
	client  *http.Client
	baseURL string
}

// New creates a dispatcher for the configured sink.
func New(cfg Config) *Dispatcher {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}

	return &Dispatcher{
		client: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
		baseURL: cfg.BaseURL,
	}
}

// Configured reports whether a base URL is set.
func (d *Dispatcher) Configured() bool {
	return d.baseURL != ""
}

// Endpoint returns the full ingestion URL, normalizing a single slash
// between base and path.
func (d *Dispatcher) Endpoint() string {
	base := strings.TrimSuffix(d.baseURL, "/")
	return base + "/" + sinkPath
}

// Deliver posts one event to the sink. A nil return means the sink
// acknowledged the event and it is safe to mark synced. Any non-nil error
// wraps ErrDeliveryFailed (or is ErrNoBaseURL) and the event must remain
// unsynced.
func (d *Dispatcher) Deliver(ctx context.Context, ev *event.LocationEvent) error {
	if d.baseURL == "" {
		return ErrNoBaseURL
	}

	body, err := json.Marshal(ev.DeliveryPayload())
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: read response: %v", ErrDeliveryFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !containsSuccessMarker(respBody) {
		metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		logging.Debug().
			Uint64("event_id", ev.ID).
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("sink rejected event")
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
	return nil
}

func containsSuccessMarker(body []byte) bool {
	for _, marker := range successMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

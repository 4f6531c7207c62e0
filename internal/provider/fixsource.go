// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypointd/internal/sampler"
)

// fixResponse is the JSON document the fix endpoint returns.
type fixResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float32 `json:"accuracy"`

	// Stale marks a position the source itself no longer trusts, for
	// example a gpsd bridge that lost satellite lock.
	Stale bool `json:"stale,omitempty"`
}

// HTTPFixSource reads the current position from an HTTP endpoint.
type HTTPFixSource struct {
	client *http.Client
	url    string
}

// NewHTTPFixSource creates a fix source polling the given URL.
func NewHTTPFixSource(url string, timeout time.Duration) *HTTPFixSource {
	return &HTTPFixSource{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// RequestFix implements sampler.LocationProvider. A 204 or 404 response,
// or a stale position, reports fix absence: (nil, nil).
func (s *HTTPFixSource) RequestFix(ctx context.Context) (*sampler.Fix, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create fix request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fix endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, fmt.Errorf("fix endpoint returned status %d", resp.StatusCode)
	}

	var fix fixResponse
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		return nil, fmt.Errorf("failed to decode fix response: %w", err)
	}
	if fix.Stale {
		return nil, nil
	}

	return &sampler.Fix{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
	}, nil
}

// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waypointd/internal/sampler"
)

// placeMatchEpsilon is the coordinate tolerance, in degrees, within which
// the cached place label from the last lookup is considered valid.
const placeMatchEpsilon = 0.01

// ipAPIResponse is the ip-api.com JSON document for the caller's own IP.
type ipAPIResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	City       string  `json:"city"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
	Query      string  `json:"query"`
}

// IPAPISource geolocates the daemon by its public IP. Accuracy is city
// level at best, so Fix.Accuracy is reported as unknown (0). One lookup
// serves both the position and the place label: ResolvePlaceName answers
// from the cached response when the coordinates match the last fix.
type IPAPISource struct {
	client *http.Client
	url    string

	mu   sync.Mutex
	last *ipAPIResponse
}

// NewIPAPISource creates an IP geolocation source against the given
// ip-api.com style endpoint.
func NewIPAPISource(url string, timeout time.Duration) *IPAPISource {
	return &IPAPISource{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// RequestFix implements sampler.LocationProvider.
func (s *IPAPISource) RequestFix(ctx context.Context) (*sampler.Fix, error) {
	result, err := s.lookup(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	return &sampler.Fix{
		Latitude:  result.Lat,
		Longitude: result.Lon,
	}, nil
}

// ResolvePlaceName implements sampler.Geocoder. It answers from the last
// lookup rather than issuing a fresh request; the free tier's rate limit
// is shared with RequestFix. Coordinates that do not match the cached
// response resolve to empty, which the sampler labels as unknown.
func (s *IPAPISource) ResolvePlaceName(ctx context.Context, lat, lon float64) (string, error) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	if last == nil {
		return "", nil
	}
	if math.Abs(last.Lat-lat) > placeMatchEpsilon || math.Abs(last.Lon-lon) > placeMatchEpsilon {
		return "", nil
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{last.City, last.RegionName, last.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", "), nil
}

func (s *IPAPISource) lookup(ctx context.Context) (*ipAPIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create geolocation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation endpoint returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode geolocation response: %w", err)
	}
	if result.Status != "" && result.Status != "success" {
		return nil, fmt.Errorf("geolocation lookup rejected: %s", result.Message)
	}

	return &result, nil
}

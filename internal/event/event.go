// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

// Package event defines the location event record that flows through the
// daemon: captured by the sampler, persisted by the store, delivered by the
// dispatcher.
package event

import (
	"strconv"
	"time"
)

// LocationEvent is one captured location sample plus diagnostic metadata.
//
// ID is assigned exactly once by the store on append and never reused.
// Synced transitions false to true exactly once, only after the sink has
// acknowledged the delivery; it never transitions back.
type LocationEvent struct {
	// ID is the locally unique, monotonically assigned identifier.
	ID uint64 `json:"id"`

	// SubjectID identifies the tracked entity.
	SubjectID string `json:"subject_id"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// PlaceName is the best-effort reverse-geocoded label. It may hold a
	// sentinel value when geocoding failed or returned nothing.
	PlaceName string `json:"place_name"`

	// CapturedAt is the capture timestamp in epoch milliseconds.
	CapturedAt int64 `json:"captured_at"`

	Synced bool `json:"synced"`

	// Diagnostic metadata. Not used for delivery decisions.
	Accuracy     float32 `json:"accuracy"`
	BatteryLevel int     `json:"battery_level"`
	NetworkType  string  `json:"network_type"`
}

// CapturedTime returns the capture timestamp as a local time.Time.
func (e *LocationEvent) CapturedTime() time.Time {
	return time.UnixMilli(e.CapturedAt)
}

// TripID derives the numeric trip identifier the sink expects: the capture
// timestamp formatted as yyyyMMddHHmmss in local time, parsed as an integer.
// It is a presentation field for the sink, not a queue identity; two events
// captured in the same second share a trip id.
func (e *LocationEvent) TripID() int64 {
	return TripID(e.CapturedAt)
}

// TripID derives the trip identifier for an epoch-millisecond timestamp.
// The result always has exactly 14 decimal digits.
func TripID(capturedAtMillis int64) int64 {
	formatted := time.UnixMilli(capturedAtMillis).Format("20060102150405")
	id, _ := strconv.ParseInt(formatted, 10, 64)
	return id
}

// Payload is the JSON body posted to the sink for one event. Field names
// follow the sink's ingestion contract, including its spelling of
// "log_lattitude". Coordinates are sent as strings; trip_id is numeric.
type Payload struct {
	SubjectID string `json:"staf_sl"`
	Date      string `json:"log_dt"`
	Time      string `json:"log_time"`
	Longitude string `json:"log_longitude"`
	Latitude  string `json:"log_lattitude"`
	Place     string `json:"log_location"`
	TripID    int64  `json:"trip_id"`
}

// DeliveryPayload builds the sink payload for the event. Dates and times use
// the local timezone, matching the capture side of the sink's contract.
func (e *LocationEvent) DeliveryPayload() Payload {
	captured := e.CapturedTime()
	return Payload{
		SubjectID: e.SubjectID,
		Date:      captured.Format("2006-01-02"),
		Time:      captured.Format("15:04"),
		Longitude: strconv.FormatFloat(e.Longitude, 'f', -1, 64),
		Latitude:  strconv.FormatFloat(e.Latitude, 'f', -1, 64),
		Place:     e.PlaceName,
		TripID:    e.TripID(),
	}
}

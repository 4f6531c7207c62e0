// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFixSourceSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"latitude":59.437,"longitude":24.7536,"accuracy":4.5}`))
	}))
	defer ts.Close()

	src := NewHTTPFixSource(ts.URL, 5*time.Second)
	fix, err := src.RequestFix(context.Background())
	if err != nil {
		t.Fatalf("RequestFix() failed: %v", err)
	}
	if fix == nil {
		t.Fatal("RequestFix() returned nil fix")
	}
	if fix.Latitude != 59.437 || fix.Longitude != 24.7536 {
		t.Errorf("coordinates = %v, %v", fix.Latitude, fix.Longitude)
	}
	if fix.Accuracy != 4.5 {
		t.Errorf("Accuracy = %v, want 4.5", fix.Accuracy)
	}
}

func TestFixSourceAbsence(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"no content", http.StatusNoContent, "", false},
		{"not found", http.StatusNotFound, "", false},
		{"stale position", http.StatusOK, `{"latitude":1,"longitude":2,"stale":true}`, false},
		{"server error", http.StatusInternalServerError, "boom", true},
		{"unauthorized", http.StatusUnauthorized, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			src := NewHTTPFixSource(ts.URL, 5*time.Second)
			fix, err := src.RequestFix(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("RequestFix() failed: %v", err)
			}
			if fix != nil {
				t.Errorf("fix = %+v, want nil for absence", fix)
			}
		})
	}
}

func TestFixSourceUnreachable(t *testing.T) {
	src := NewHTTPFixSource("http://127.0.0.1:1/fix", 500*time.Millisecond)
	if _, err := src.RequestFix(context.Background()); err == nil {
		t.Error("expected an error for an unreachable endpoint")
	}
}

func TestIPAPISourceFixAndPlace(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","lat":59.437,"lon":24.7536,` +
			`"city":"Tallinn","regionName":"Harjumaa","country":"Estonia","query":"198.51.100.7"}`))
	}))
	defer ts.Close()

	src := NewIPAPISource(ts.URL, 5*time.Second)
	fix, err := src.RequestFix(context.Background())
	if err != nil {
		t.Fatalf("RequestFix() failed: %v", err)
	}
	if fix.Latitude != 59.437 || fix.Longitude != 24.7536 {
		t.Errorf("coordinates = %v, %v", fix.Latitude, fix.Longitude)
	}
	if fix.Accuracy != 0 {
		t.Errorf("Accuracy = %v, want 0 for IP geolocation", fix.Accuracy)
	}

	// Same coordinates resolve from the cached lookup.
	place, err := src.ResolvePlaceName(context.Background(), 59.4375, 24.754)
	if err != nil {
		t.Fatalf("ResolvePlaceName() failed: %v", err)
	}
	if place != "Tallinn, Harjumaa, Estonia" {
		t.Errorf("place = %q", place)
	}

	// Coordinates far from the cached fix do not match.
	place, err = src.ResolvePlaceName(context.Background(), 48.8566, 2.3522)
	if err != nil {
		t.Fatalf("ResolvePlaceName() failed: %v", err)
	}
	if place != "" {
		t.Errorf("place = %q, want empty for mismatched coordinates", place)
	}
}

func TestIPAPISourcePlaceBeforeLookup(t *testing.T) {
	src := NewIPAPISource("http://127.0.0.1:1", time.Second)
	place, err := src.ResolvePlaceName(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ResolvePlaceName() failed: %v", err)
	}
	if place != "" {
		t.Errorf("place = %q, want empty before any lookup", place)
	}
}

func TestIPAPISourceRejectsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail","message":"private range","query":"192.168.1.5"}`))
	}))
	defer ts.Close()

	src := NewIPAPISource(ts.URL, 5*time.Second)
	if _, err := src.RequestFix(context.Background()); err == nil {
		t.Error("expected an error for a rejected lookup")
	}
}

func TestClassifyInterface(t *testing.T) {
	tests := []struct {
		iface string
		want  string
	}{
		{"wlan0", "WIFI"},
		{"wlp3s0", "WIFI"},
		{"eth0", "ETHERNET"},
		{"enp0s31f6", "ETHERNET"},
		{"wwan0", "CELLULAR"},
		{"rmnet_data0", "CELLULAR"},
		{"tun0", "VPN"},
		{"wg0", "VPN"},
		{"tailscale0", "VPN"},
		{"lo", "UNKNOWN"},
		{"docker0", "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := classifyInterface(tt.iface); got != tt.want {
			t.Errorf("classifyInterface(%q) = %q, want %q", tt.iface, got, tt.want)
		}
	}
}

func writeSysFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", name, err)
	}
}

func TestBatteryLevel(t *testing.T) {
	dir := t.TempDir()

	// An AC adapter entry the reader must skip.
	acDir := filepath.Join(dir, "AC")
	if err := os.Mkdir(acDir, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	writeSysFile(t, acDir, "type", "Mains\n")

	batDir := filepath.Join(dir, "BAT0")
	if err := os.Mkdir(batDir, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	writeSysFile(t, batDir, "type", "Battery\n")
	writeSysFile(t, batDir, "capacity", "87\n")

	info := &HostDeviceInfo{powerSupplyDir: dir, routeFile: "/nonexistent"}
	if got := info.BatteryLevel(); got != 87 {
		t.Errorf("BatteryLevel() = %d, want 87", got)
	}
}

func TestBatteryLevelUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{"missing directory", func(t *testing.T, dir string) {
			os.RemoveAll(dir)
		}},
		{"no battery entries", func(t *testing.T, dir string) {}},
		{"capacity out of range", func(t *testing.T, dir string) {
			batDir := filepath.Join(dir, "BAT0")
			if err := os.Mkdir(batDir, 0o755); err != nil {
				t.Fatalf("Mkdir failed: %v", err)
			}
			writeSysFile(t, batDir, "type", "Battery\n")
			writeSysFile(t, batDir, "capacity", "250\n")
		}},
		{"capacity not a number", func(t *testing.T, dir string) {
			batDir := filepath.Join(dir, "BAT0")
			if err := os.Mkdir(batDir, 0o755); err != nil {
				t.Fatalf("Mkdir failed: %v", err)
			}
			writeSysFile(t, batDir, "type", "Battery\n")
			writeSysFile(t, batDir, "capacity", "full\n")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)
			info := &HostDeviceInfo{powerSupplyDir: dir, routeFile: "/nonexistent"}
			if got := info.BatteryLevel(); got != -1 {
				t.Errorf("BatteryLevel() = %d, want -1", got)
			}
		})
	}
}

func TestNetworkTypeFromRouteTable(t *testing.T) {
	route := "Iface\tDestination\tGateway\tFlags\tRefCnt\tUse\tMetric\tMask\tMTU\tWindow\tIRTT\n" +
		"wlan0\t00000000\t0102A8C0\t0003\t0\t0\t600\t00000000\t0\t0\t0\n" +
		"wlan0\t0002A8C0\t00000000\t0001\t0\t0\t600\t00FFFFFF\t0\t0\t0\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "route")
	if err := os.WriteFile(path, []byte(route), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	info := &HostDeviceInfo{powerSupplyDir: dir, routeFile: path}
	if got := info.NetworkType(); got != "WIFI" {
		t.Errorf("NetworkType() = %q, want WIFI", got)
	}
}

func TestNetworkTypeNoDefaultRoute(t *testing.T) {
	route := "Iface\tDestination\tGateway\n" +
		"eth0\t0002A8C0\t00000000\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "route")
	if err := os.WriteFile(path, []byte(route), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	tests := []struct {
		name      string
		routeFile string
	}{
		{"no default route", path},
		{"missing route table", "/nonexistent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &HostDeviceInfo{powerSupplyDir: dir, routeFile: tt.routeFile}
			if got := info.NetworkType(); got != "UNKNOWN" {
				t.Errorf("NetworkType() = %q, want UNKNOWN", got)
			}
		})
	}
}

func TestProviderSelection(t *testing.T) {
	// A fix URL wins over IP geolocation for positioning.
	prov, geo := New(Config{FixURL: "http://localhost:9000/fix", GeoIPURL: "http://ip-api.example/json"})
	if _, ok := prov.(*HTTPFixSource); !ok {
		t.Errorf("provider = %T, want *HTTPFixSource", prov)
	}
	if _, ok := geo.(*IPAPISource); !ok {
		t.Errorf("geocoder = %T, want *IPAPISource", geo)
	}

	// Without a fix URL the IP source serves both roles.
	prov, geo = New(Config{GeoIPURL: "http://ip-api.example/json"})
	src, ok := prov.(*IPAPISource)
	if !ok {
		t.Fatalf("provider = %T, want *IPAPISource", prov)
	}
	if geoSrc, ok := geo.(*IPAPISource); !ok || geoSrc != src {
		t.Error("geocoder should be the same IP source instance")
	}
}

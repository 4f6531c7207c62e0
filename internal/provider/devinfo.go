// Waypointd - Offline-first Location Capture and Sync Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypointd

package provider

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// HostDeviceInfo reads battery and network metadata from the Linux sysfs
// and procfs trees. Every read is best effort; hosts without a battery or
// a default route report the unknown values (-1, "UNKNOWN").
type HostDeviceInfo struct {
	powerSupplyDir string
	routeFile      string
}

// NewHostDeviceInfo creates a device info reader for the running host.
func NewHostDeviceInfo() *HostDeviceInfo {
	return &HostDeviceInfo{
		powerSupplyDir: "/sys/class/power_supply",
		routeFile:      "/proc/net/route",
	}
}

// BatteryLevel returns the first battery's charge percentage, or -1 when
// the host has no readable battery.
func (d *HostDeviceInfo) BatteryLevel() int {
	entries, err := os.ReadDir(d.powerSupplyDir)
	if err != nil {
		return -1
	}

	for _, entry := range entries {
		base := filepath.Join(d.powerSupplyDir, entry.Name())

		kind, err := os.ReadFile(filepath.Join(base, "type"))
		if err != nil || strings.TrimSpace(string(kind)) != "Battery" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(base, "capacity"))
		if err != nil {
			continue
		}
		level, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil || level < 0 || level > 100 {
			continue
		}
		return level
	}
	return -1
}

// NetworkType classifies the default route's interface by its kernel
// naming convention.
func (d *HostDeviceInfo) NetworkType() string {
	iface := d.defaultRouteInterface()
	if iface == "" {
		return "UNKNOWN"
	}
	return classifyInterface(iface)
}

// defaultRouteInterface parses /proc/net/route for the interface carrying
// the 0.0.0.0/0 route.
func (d *HostDeviceInfo) defaultRouteInterface() string {
	raw, err := os.ReadFile(d.routeFile)
	if err != nil {
		return ""
	}

	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// Destination 00000000 is the default route.
		if fields[1] == "00000000" {
			return fields[0]
		}
	}
	return ""
}

func classifyInterface(name string) string {
	switch {
	case strings.HasPrefix(name, "wl"):
		return "WIFI"
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return "ETHERNET"
	case strings.HasPrefix(name, "ww"), strings.HasPrefix(name, "rmnet"):
		return "CELLULAR"
	case strings.HasPrefix(name, "tun"), strings.HasPrefix(name, "wg"), strings.HasPrefix(name, "tailscale"):
		return "VPN"
	default:
		return "UNKNOWN"
	}
}

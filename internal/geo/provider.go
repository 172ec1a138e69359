// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"context"
	"net"
	"strings"

	"github.com/streamwarden/streamwarden/internal/models"
)

// Provider is a single geolocation lookup backend.
type Provider interface {
	// Lookup resolves the IP to a location. The IP is guaranteed to be a
	// valid, non-private address by the time a provider sees it.
	Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error)

	// Name identifies the provider in logs and metrics.
	Name() string

	// Available reports whether the provider is configured and usable.
	Available() bool
}

// privateRanges covers RFC 1918, loopback, link-local, CGNAT, and their IPv6
// equivalents. Addresses in these ranges cannot be geolocated.
var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, network)
	}
	return nets
}

// IsPrivateIP reports whether the address is in a private or local range.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// NormalizeIP strips a trailing port and IPv6 brackets so that cache keys and
// provider queries always see a bare address. Returns "" for unparseable
// input.
func NormalizeIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	raw = strings.Trim(raw, "[]")
	if net.ParseIP(raw) == nil {
		return ""
	}
	return raw
}

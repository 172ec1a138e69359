// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geo resolves client IP addresses to coarse locations.
//
// Three providers are supported, tried in order of configuration:
//
//   - a local MaxMind GeoLite2 database file (no network, no rate limit)
//   - the MaxMind GeoLite2 web service (requires account id + license key)
//   - ip-api.com (free, no key, 45 requests/minute)
//
// The Resolver fronts the provider chain with a persistent per-IP cache and
// never returns an error: private addresses and failed lookups resolve to a
// zero-valued Geolocation, which the detection engine treats as "location
// unknown".
package geo

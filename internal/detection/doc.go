// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detection implements the behavioral rule engine.
//
// The engine is a stateless evaluator: given a newly observed session, the
// active rule set, and a bounded history window for the same account, it
// returns zero or more results without performing any I/O. Rule types:
//
//   - impossible_travel: great-circle distance over elapsed time exceeds a
//     speed ceiling (severity high)
//   - simultaneous_locations: concurrent playback from locations further
//     apart than a minimum distance (warning)
//   - device_velocity: too many distinct IPs within a trailing window
//     (warning)
//   - concurrent_streams: active stream count over the limit (low)
//   - geo_restriction: country block/allow lists (high)
//
// The Sink persists violated results and applies trust-score penalties;
// lifecycle event publication stays with the poll orchestrator.
package detection

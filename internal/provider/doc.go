// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider implements the media-server adapters.
//
// Each adapter fetches the active sessions from one configured server and
// normalizes the provider-native payload into the canonical
// models.NormalizedSession shape. Provider differences are resolved entirely
// at this boundary; the rest of the pipeline never branches on server type.
//
// The normalizers are pure functions so that the same raw payload always
// yields a bit-identical normalized session. All network access lives in the
// clients, which are wrapped with a circuit breaker per server.
package provider

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the canonical data model shared across the engine:
// servers, normalized and persisted sessions, users, geolocations, and the
// provider-native payload shapes consumed by the normalizers.
package models

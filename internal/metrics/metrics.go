// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for the polling engine.
// Metrics are exposed at /metrics in Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTicksTotal counts completed poll ticks by outcome.
	PollTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwarden_poll_ticks_total",
		Help: "Total poll ticks executed, labeled by trigger source.",
	}, []string{"trigger"})

	// PollTickDuration observes end-to-end tick latency.
	PollTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamwarden_poll_tick_duration_seconds",
		Help:    "Poll tick duration in seconds.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// ProviderFetchErrors counts per-server session fetch failures.
	ProviderFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwarden_provider_fetch_errors_total",
		Help: "Failed active-session fetches, labeled by server.",
	}, []string{"server"})

	// ActiveSessions tracks the per-server active session count as of the
	// last completed tick.
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamwarden_active_sessions",
		Help: "Active sessions per server as of the last completed tick.",
	}, []string{"server"})

	// SessionEvents counts lifecycle transitions by type.
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwarden_session_events_total",
		Help: "Session lifecycle events, labeled by type (started, updated, stopped).",
	}, []string{"type"})

	// ViolationsTotal counts recorded violations by rule type and severity.
	ViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwarden_violations_total",
		Help: "Recorded violations, labeled by rule type and severity.",
	}, []string{"rule_type", "severity"})

	// GeoLookups counts geolocation resolutions by provider and status.
	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwarden_geoip_lookups_total",
		Help: "Geolocation lookups, labeled by provider and status (hit, miss, error, cached, private).",
	}, []string{"provider", "status"})

	// PublishErrors counts best-effort event publication failures.
	PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamwarden_event_publish_errors_total",
		Help: "Event publication failures, labeled by topic.",
	}, []string{"topic"})

	// CircuitBreakerState exposes breaker state per provider client
	// (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamwarden_circuit_breaker_state",
		Help: "Provider client circuit breaker state (0=closed, 1=open, 2=half-open).",
	}, []string{"name"})
)

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api exposes the admin HTTP surface: poller control, health, and
// Prometheus metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamwarden/streamwarden/internal/poller"
)

// PollerControl is the slice of the orchestrator the admin API drives.
type PollerControl interface {
	Start()
	Stop()
	Trigger() bool
	Status() poller.Status
}

// Config tunes the router.
type Config struct {
	// RateLimitRequests per RateLimitWindow per client IP on the control
	// endpoints. Health and metrics are not rate limited; they are hit by
	// orchestrators and scrapers on tight schedules.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,
	}
}

// Router builds the admin HTTP handler.
type Router struct {
	cfg    Config
	poller PollerControl
}

// NewRouter creates a router around the given poller control surface.
func NewRouter(cfg Config, p PollerControl) *Router {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = DefaultConfig().RateLimitRequests
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultConfig().RateLimitWindow
	}
	return &Router{cfg: cfg, poller: p}
}

// Handler assembles the route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", rt.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/poller", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.cfg.RateLimitRequests, rt.cfg.RateLimitWindow))
		r.Get("/status", rt.pollerStatus)
		r.Post("/trigger", rt.pollerTrigger)
		r.Post("/start", rt.pollerStart)
		r.Post("/stop", rt.pollerStop)
	})

	return r
}

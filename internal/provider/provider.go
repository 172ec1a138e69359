// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/streamwarden/streamwarden/internal/models"
)

// defaultHTTPTimeout bounds a single sessions request. The poll interval is
// typically 30s, so a slow server must not eat the whole tick.
const defaultHTTPTimeout = 15 * time.Second

// Adapter fetches and normalizes the active sessions of one media server.
type Adapter interface {
	// Server returns the server this adapter talks to.
	Server() *models.Server

	// FetchSessions returns the currently active playback sessions,
	// already normalized. An empty slice means the server reported no
	// active playback; an error means the fetch failed and nothing can be
	// said about the server's sessions.
	FetchSessions(ctx context.Context) ([]models.NormalizedSession, error)
}

// Registry holds one breaker-wrapped adapter per configured server.
type Registry struct {
	adapters []Adapter
}

// NewRegistry builds adapters for the given servers. Each adapter is wrapped
// with its own circuit breaker so a flapping server cannot slow down the
// others. Unknown server types are rejected up front.
func NewRegistry(servers []models.Server) (*Registry, error) {
	adapters := make([]Adapter, 0, len(servers))
	for i := range servers {
		srv := servers[i]
		var inner Adapter
		switch srv.Type {
		case models.ProviderPlex:
			inner = NewPlexClient(&srv)
		case models.ProviderJellyfin:
			inner = NewJellyfinClient(&srv)
		default:
			return nil, fmt.Errorf("server %q: unknown provider type %q", srv.Name, srv.Type)
		}
		adapters = append(adapters, newBreakerAdapter(inner))
	}
	return &Registry{adapters: adapters}, nil
}

// Adapters returns all registered adapters in configuration order.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

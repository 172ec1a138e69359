// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"context"
	"time"

	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/metrics"
	"github.com/streamwarden/streamwarden/internal/models"
)

// CacheStore persists resolved locations keyed by IP. GetGeolocation returns
// (nil, nil) on a cache miss.
type CacheStore interface {
	GetGeolocation(ctx context.Context, ipAddress string) (*models.Geolocation, error)
	UpsertGeolocation(ctx context.Context, geo *models.Geolocation) error
}

// DefaultCacheTTL is how long a cached location stays fresh. Residential IPs
// move rarely; a day keeps external lookups well under free-tier limits.
const DefaultCacheTTL = 24 * time.Hour

// Resolver fronts a provider chain with a persistent cache. Resolve never
// fails: anything that cannot be located comes back as the zero Geolocation,
// whose (0, 0) coordinates the rule engine reads as "unknown".
type Resolver struct {
	providers []Provider
	cache     CacheStore
	ttl       time.Duration
}

// NewResolver builds a resolver over the given providers, tried in order.
func NewResolver(cache CacheStore, ttl time.Duration, providers ...Provider) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{providers: providers, cache: cache, ttl: ttl}
}

// Resolve maps a raw address (possibly with port or brackets) to a location.
func (r *Resolver) Resolve(ctx context.Context, rawIP string) models.Geolocation {
	ip := NormalizeIP(rawIP)
	if ip == "" {
		metrics.GeoLookups.WithLabelValues("none", "invalid").Inc()
		return models.Geolocation{IPAddress: rawIP}
	}

	if IsPrivateIP(ip) {
		metrics.GeoLookups.WithLabelValues("none", "private").Inc()
		return models.Geolocation{IPAddress: ip}
	}

	cached := r.lookupCache(ctx, ip)
	if cached != nil && time.Since(cached.LastUpdated) < r.ttl {
		metrics.GeoLookups.WithLabelValues("cache", "cached").Inc()
		return *cached
	}

	for _, p := range r.providers {
		if !p.Available() {
			continue
		}
		geo, err := p.Lookup(ctx, ip)
		if err != nil {
			metrics.GeoLookups.WithLabelValues(p.Name(), "error").Inc()
			logging.Debug().Err(err).Str("ip", ip).Str("provider", p.Name()).Msg("geo lookup failed")
			continue
		}
		metrics.GeoLookups.WithLabelValues(p.Name(), "hit").Inc()
		r.storeCache(ctx, geo)
		return *geo
	}

	// Every provider failed; a stale cache entry beats no location.
	if cached != nil {
		metrics.GeoLookups.WithLabelValues("cache", "cached").Inc()
		return *cached
	}

	metrics.GeoLookups.WithLabelValues("none", "miss").Inc()
	return models.Geolocation{IPAddress: ip}
}

func (r *Resolver) lookupCache(ctx context.Context, ip string) *models.Geolocation {
	if r.cache == nil {
		return nil
	}
	geo, err := r.cache.GetGeolocation(ctx, ip)
	if err != nil {
		logging.Warn().Err(err).Str("ip", ip).Msg("geolocation cache read failed")
		return nil
	}
	return geo
}

func (r *Resolver) storeCache(ctx context.Context, geo *models.Geolocation) {
	if r.cache == nil {
		return
	}
	if err := r.cache.UpsertGeolocation(ctx, geo); err != nil {
		logging.Warn().Err(err).Str("ip", geo.IPAddress).Msg("geolocation cache write failed")
	}
}

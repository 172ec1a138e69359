// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/streamwarden/streamwarden/internal/models"
)

// MMDBProvider resolves locations from a local MaxMind GeoLite2/GeoIP2 City
// database file. Preferred when configured: no network, no rate limits.
type MMDBProvider struct {
	db *geoip2.Reader
}

// NewMMDBProvider opens the database at path. The caller owns the returned
// provider and must Close it on shutdown.
func NewMMDBProvider(path string) (*MMDBProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("mmdb path not configured")
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mmdb %s: %w", path, err)
	}
	return &MMDBProvider{db: db}, nil
}

// Name returns the provider name.
func (p *MMDBProvider) Name() string {
	return "maxmind-mmdb"
}

// Available reports whether the database is open.
func (p *MMDBProvider) Available() bool {
	return p.db != nil
}

// Lookup resolves the IP against the local database.
func (p *MMDBProvider) Lookup(_ context.Context, ipAddress string) (*models.Geolocation, error) {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	city, err := p.db.City(ip)
	if err != nil {
		return nil, fmt.Errorf("mmdb lookup %s: %w", ipAddress, err)
	}

	return &models.Geolocation{
		IPAddress:   ipAddress,
		City:        city.City.Names["en"],
		Country:     city.Country.IsoCode,
		Latitude:    city.Location.Latitude,
		Longitude:   city.Location.Longitude,
		LastUpdated: time.Now().UTC(),
	}, nil
}

// Close releases the database handle.
func (p *MMDBProvider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

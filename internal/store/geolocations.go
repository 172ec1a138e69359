// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/streamwarden/streamwarden/internal/models"
)

// GetGeolocation returns the cached location for an IP, or (nil, nil) on a
// cache miss.
func (s *Store) GetGeolocation(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT ip_address, city, country, latitude, longitude, last_updated
		FROM geolocations WHERE ip_address = ?`, ipAddress)

	var geo models.Geolocation
	err := row.Scan(&geo.IPAddress, &geo.City, &geo.Country, &geo.Latitude, &geo.Longitude, &geo.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get geolocation %s: %w", ipAddress, err)
	}
	return &geo, nil
}

// UpsertGeolocation inserts or refreshes a cached location.
func (s *Store) UpsertGeolocation(ctx context.Context, geo *models.Geolocation) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO geolocations (ip_address, city, country, latitude, longitude, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (ip_address) DO UPDATE SET
			city = excluded.city,
			country = excluded.country,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			last_updated = excluded.last_updated`,
		geo.IPAddress, geo.City, geo.Country, geo.Latitude, geo.Longitude, geo.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert geolocation %s: %w", geo.IPAddress, err)
	}
	return nil
}

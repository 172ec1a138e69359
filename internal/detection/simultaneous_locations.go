// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// evaluateSimultaneousLocations flags accounts that are actively playing from
// locations further apart than the configured minimum. Sessions sharing the
// triggering session's device id are the same client seen twice and never
// count against it.
func evaluateSimultaneousLocations(session *models.Session, rule *Rule, hist *History) (any, Severity, error) {
	var params SimultaneousLocationsParams
	if err := json.Unmarshal(rule.Params, &params); err != nil {
		return nil, "", invalidParams(rule, err)
	}
	if params.MinDistanceKm <= 0 {
		return nil, "", invalidParams(rule, fmt.Errorf("min_distance_km must be positive, got %v", params.MinDistanceKm))
	}

	if !HasKnownLocation(session.Latitude, session.Longitude) {
		return nil, "", nil
	}

	var conflicting []*models.Session
	for i := range hist.Active {
		peer := &hist.Active[i]
		if peer.State != models.StatePlaying {
			continue
		}
		if peer.DeviceID != "" && peer.DeviceID == session.DeviceID {
			continue
		}
		if !HasKnownLocation(peer.Latitude, peer.Longitude) {
			continue
		}
		if haversineKm(session.Latitude, session.Longitude, peer.Latitude, peer.Longitude) > params.MinDistanceKm {
			conflicting = append(conflicting, peer)
		}
	}

	if len(conflicting) == 0 {
		return nil, "", nil
	}

	points := make([]LocationPoint, 0, len(conflicting)+1)
	points = append(points, LocationPoint{
		SessionID: session.ID,
		City:      session.City,
		Country:   session.Country,
		Latitude:  session.Latitude,
		Longitude: session.Longitude,
	})
	ids := make([]string, 0, len(conflicting))
	for _, peer := range conflicting {
		points = append(points, LocationPoint{
			SessionID: peer.ID,
			City:      peer.City,
			Country:   peer.Country,
			Latitude:  peer.Latitude,
			Longitude: peer.Longitude,
		})
		ids = append(ids, peer.ID)
	}

	evidence := SimultaneousEvidence{
		Locations:             points,
		MaxDistanceKm:         roundKm(maxPairwiseKm(points)),
		MinDistanceKm:         params.MinDistanceKm,
		ConflictingSessionIDs: ids,
	}
	return evidence, SeverityWarning, nil
}

// maxPairwiseKm returns the greatest distance between any two points.
func maxPairwiseKm(points []LocationPoint) float64 {
	var maxKm float64
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			d := haversineKm(points[i].Latitude, points[i].Longitude, points[j].Latitude, points[j].Longitude)
			if d > maxKm {
				maxKm = d
			}
		}
	}
	return maxKm
}

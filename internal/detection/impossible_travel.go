// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// evaluateImpossibleTravel flags users whose session locations imply travel
// faster than the configured ceiling. Each prior session with known
// coordinates is compared against the triggering session; the first prior
// session requiring speed above the ceiling wins — evaluation does not
// continue to find a worse match.
func evaluateImpossibleTravel(session *models.Session, rule *Rule, hist *History) (any, Severity, error) {
	var params ImpossibleTravelParams
	if err := json.Unmarshal(rule.Params, &params); err != nil {
		return nil, "", invalidParams(rule, err)
	}
	if params.MaxSpeedKmh <= 0 {
		return nil, "", invalidParams(rule, fmt.Errorf("max_speed_kmh must be positive, got %v", params.MaxSpeedKmh))
	}

	if !HasKnownLocation(session.Latitude, session.Longitude) {
		return nil, "", nil
	}

	for i := range hist.Recent {
		prior := &hist.Recent[i]
		if !HasKnownLocation(prior.Latitude, prior.Longitude) {
			continue
		}

		elapsed := session.StartedAt.Sub(prior.StartedAt).Hours()
		if elapsed <= 0 {
			continue
		}

		distance := haversineKm(prior.Latitude, prior.Longitude, session.Latitude, session.Longitude)
		speed := distance / elapsed
		if speed <= params.MaxSpeedKmh {
			continue
		}

		evidence := TravelEvidence{
			FromLatitude:  prior.Latitude,
			FromLongitude: prior.Longitude,
			FromCity:      prior.City,
			FromCountry:   prior.Country,
			FromStartedAt: prior.StartedAt,
			ToLatitude:    session.Latitude,
			ToLongitude:   session.Longitude,
			ToCity:        session.City,
			ToCountry:     session.Country,
			DistanceKm:    roundKm(distance),
			ElapsedHours:  elapsed,
			SpeedKmh:      roundKm(speed),
			MaxSpeedKmh:   params.MaxSpeedKmh,
		}
		return evidence, SeverityHigh, nil
	}

	return nil, "", nil
}

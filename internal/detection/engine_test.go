// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

func activeRule(t RuleType, params string) Rule {
	return Rule{
		ID:       "rule-" + string(t),
		Name:     string(t),
		Type:     t,
		Params:   json.RawMessage(params),
		IsActive: true,
	}
}

func playingSession(id, userID string, lat, lon float64, startedAt time.Time) models.Session {
	return models.Session{
		NormalizedSession: models.NormalizedSession{
			SessionKey: "key-" + id,
			State:      models.StatePlaying,
			DeviceID:   "device-" + id,
			IPAddress:  "203.0.113." + id,
		},
		ID:        id,
		ServerID:  "srv1",
		UserID:    userID,
		Latitude:  lat,
		Longitude: lon,
		StartedAt: startedAt,
	}
}

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		expected               float64
		tolerance              float64
	}{
		{"same point", 40.7128, -74.0060, 40.7128, -74.0060, 0, 0.001},
		{"NYC to London", 40.7128, -74.0060, 51.5074, -0.1278, 5570, 50},
		{"NYC to LA", 40.7128, -74.0060, 34.0522, -118.2437, 3940, 50},
		{"Sydney to Tokyo", -33.8688, 151.2093, 35.6762, 139.6503, 7820, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := haversineKm(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(d-tt.expected) > tt.tolerance {
				t.Errorf("distance = %.2f km, expected %.2f km (+/- %.2f)", d, tt.expected, tt.tolerance)
			}

			// Symmetry: distance(a,b) == distance(b,a)
			rev := haversineKm(tt.lat2, tt.lon2, tt.lat1, tt.lon1)
			if math.Abs(d-rev) > 1e-9 {
				t.Errorf("haversine not symmetric: %.9f vs %.9f", d, rev)
			}
		})
	}
}

func TestImpossibleTravel(t *testing.T) {
	now := time.Now().UTC()
	rule := activeRule(RuleImpossibleTravel, `{"max_speed_kmh": 1000}`)

	tests := []struct {
		name     string
		session  models.Session
		recent   []models.Session
		violated bool
	}{
		{
			name:     "no prior sessions",
			session:  playingSession("1", "u1", 40.7, -74.0, now),
			violated: false,
		},
		{
			name:    "NYC to London in 30 minutes",
			session: playingSession("1", "u1", 51.5, -0.1, now),
			recent: []models.Session{
				playingSession("2", "u1", 40.7, -74.0, now.Add(-30*time.Minute)),
			},
			violated: true,
		},
		{
			name:    "NYC to Boston over four hours",
			session: playingSession("1", "u1", 42.3601, -71.0589, now),
			recent: []models.Session{
				playingSession("2", "u1", 40.7128, -74.0060, now.Add(-4*time.Hour)),
			},
			violated: false,
		},
		{
			name:    "prior session without coordinates is skipped",
			session: playingSession("1", "u1", 51.5, -0.1, now),
			recent: []models.Session{
				playingSession("2", "u1", 0, 0, now.Add(-30*time.Minute)),
			},
			violated: false,
		},
		{
			name:    "non-finite coordinates do not apply",
			session: playingSession("1", "u1", math.NaN(), -0.1, now),
			recent: []models.Session{
				playingSession("2", "u1", 40.7, -74.0, now.Add(-30*time.Minute)),
			},
			violated: false,
		},
		{
			name:    "out-of-order prior session is skipped",
			session: playingSession("1", "u1", 51.5, -0.1, now),
			recent: []models.Session{
				playingSession("2", "u1", 40.7, -74.0, now.Add(10*time.Minute)),
			},
			violated: false,
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := engine.Evaluate(&tt.session, []Rule{rule}, History{Recent: tt.recent})
			if len(results) != 1 {
				t.Fatalf("got %d results, want 1", len(results))
			}
			if results[0].Violated != tt.violated {
				t.Errorf("violated = %v, want %v", results[0].Violated, tt.violated)
			}
			if tt.violated && results[0].Severity != SeverityHigh {
				t.Errorf("severity = %s, want high", results[0].Severity)
			}
		})
	}
}

func TestImpossibleTravelEvidence(t *testing.T) {
	now := time.Now().UTC()
	rule := activeRule(RuleImpossibleTravel, `{"max_speed_kmh": 1000}`)
	session := playingSession("1", "u1", 51.5, -0.1, now)
	recent := []models.Session{playingSession("2", "u1", 40.7, -74.0, now.Add(-30*time.Minute))}

	results := NewEngine().Evaluate(&session, []Rule{rule}, History{Recent: recent})
	if len(results) != 1 || !results[0].Violated {
		t.Fatalf("expected one violated result, got %+v", results)
	}

	var ev TravelEvidence
	if err := json.Unmarshal(results[0].Evidence, &ev); err != nil {
		t.Fatalf("evidence unmarshal: %v", err)
	}
	if ev.DistanceKm < 5500 || ev.DistanceKm > 5650 {
		t.Errorf("distance = %.1f km, want ~5570", ev.DistanceKm)
	}
	// ~5570 km in 0.5h requires ~11,140 km/h
	if ev.SpeedKmh < 11000 || ev.SpeedKmh > 11300 {
		t.Errorf("speed = %.1f km/h, want ~11140", ev.SpeedKmh)
	}
	if ev.MaxSpeedKmh != 1000 {
		t.Errorf("max speed = %v, want 1000", ev.MaxSpeedKmh)
	}
}

func TestSimultaneousLocations(t *testing.T) {
	now := time.Now().UTC()
	rule := activeRule(RuleSimultaneousLocations, `{"min_distance_km": 50}`)

	session := playingSession("1", "u1", 40.7128, -74.0060, now) // NYC

	t.Run("distant playing peer violates", func(t *testing.T) {
		peers := []models.Session{playingSession("2", "u1", 51.5074, -0.1278, now)} // London
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Active: peers})
		if !results[0].Violated {
			t.Fatal("expected violation")
		}
		if results[0].Severity != SeverityWarning {
			t.Errorf("severity = %s, want warning", results[0].Severity)
		}

		var ev SimultaneousEvidence
		if err := json.Unmarshal(results[0].Evidence, &ev); err != nil {
			t.Fatalf("evidence unmarshal: %v", err)
		}
		if len(ev.Locations) != 2 {
			t.Errorf("locations = %d, want 2 (triggering + conflicting)", len(ev.Locations))
		}
		if len(ev.ConflictingSessionIDs) != 1 || ev.ConflictingSessionIDs[0] != "2" {
			t.Errorf("conflicting ids = %v, want [2]", ev.ConflictingSessionIDs)
		}
		if ev.MaxDistanceKm < 5500 {
			t.Errorf("max distance = %.1f, want > 5500", ev.MaxDistanceKm)
		}
	})

	t.Run("same device never conflicts", func(t *testing.T) {
		peer := playingSession("2", "u1", 51.5074, -0.1278, now)
		peer.DeviceID = session.DeviceID
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Active: []models.Session{peer}})
		if results[0].Violated {
			t.Error("same-device peer must not trigger simultaneous_locations")
		}
	})

	t.Run("paused peer does not conflict", func(t *testing.T) {
		peer := playingSession("2", "u1", 51.5074, -0.1278, now)
		peer.State = models.StatePaused
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Active: []models.Session{peer}})
		if results[0].Violated {
			t.Error("paused peer must not trigger simultaneous_locations")
		}
	})

	t.Run("nearby peer does not conflict", func(t *testing.T) {
		peers := []models.Session{playingSession("2", "u1", 40.7484, -73.9857, now)} // ~6 km
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Active: peers})
		if results[0].Violated {
			t.Error("peer within min distance must not trigger")
		}
	})
}

func TestDeviceVelocity(t *testing.T) {
	now := time.Now().UTC()
	rule := activeRule(RuleDeviceVelocity, `{"max_ips": 2, "window_hours": 24}`)

	session := playingSession("1", "u1", 40.7, -74.0, now)
	session.IPAddress = "198.51.100.1"

	mkPrior := func(id, ip string, age time.Duration) models.Session {
		s := playingSession(id, "u1", 40.7, -74.0, now.Add(-age))
		s.IPAddress = ip
		return s
	}

	tests := []struct {
		name     string
		recent   []models.Session
		violated bool
		count    int
	}{
		{
			name: "three distinct IPs in window exceeds two",
			recent: []models.Session{
				mkPrior("2", "198.51.100.2", time.Hour),
				mkPrior("3", "198.51.100.3", 2*time.Hour),
			},
			violated: true,
			count:    3,
		},
		{
			name: "repeat IPs collapse",
			recent: []models.Session{
				mkPrior("2", "198.51.100.1", time.Hour),
				mkPrior("3", "198.51.100.1", 2*time.Hour),
			},
			violated: false,
		},
		{
			name: "IPs outside the window are ignored",
			recent: []models.Session{
				mkPrior("2", "198.51.100.2", 30*time.Hour),
				mkPrior("3", "198.51.100.3", 40*time.Hour),
			},
			violated: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := NewEngine().Evaluate(&session, []Rule{rule}, History{Recent: tt.recent})
			if results[0].Violated != tt.violated {
				t.Fatalf("violated = %v, want %v", results[0].Violated, tt.violated)
			}
			if tt.violated {
				var ev VelocityEvidence
				if err := json.Unmarshal(results[0].Evidence, &ev); err != nil {
					t.Fatalf("evidence unmarshal: %v", err)
				}
				if ev.IPCount != tt.count {
					t.Errorf("ip count = %d, want %d", ev.IPCount, tt.count)
				}
			}
		})
	}
}

func TestConcurrentStreams(t *testing.T) {
	now := time.Now().UTC()
	rule := activeRule(RuleConcurrentStreams, `{"max_streams": 2}`)
	session := playingSession("1", "u1", 40.7, -74.0, now)

	t.Run("third distinct device exceeds limit of two", func(t *testing.T) {
		peers := []models.Session{
			playingSession("2", "u1", 40.7, -74.0, now),
			playingSession("3", "u1", 40.7, -74.0, now),
		}
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Active: peers})
		if !results[0].Violated {
			t.Fatal("expected violation: 3 streams > 2")
		}
		if results[0].Severity != SeverityLow {
			t.Errorf("severity = %s, want low", results[0].Severity)
		}

		var ev StreamsEvidence
		if err := json.Unmarshal(results[0].Evidence, &ev); err != nil {
			t.Fatalf("evidence unmarshal: %v", err)
		}
		if ev.StreamCount != 3 || ev.MaxStreams != 2 {
			t.Errorf("count/limit = %d/%d, want 3/2", ev.StreamCount, ev.MaxStreams)
		}
		if len(ev.ConflictingSessionIDs) != 2 {
			t.Errorf("conflicting ids = %v, want two entries", ev.ConflictingSessionIDs)
		}
	})

	t.Run("same-device duplicate collapses", func(t *testing.T) {
		dup := playingSession("2", "u1", 40.7, -74.0, now)
		dup.DeviceID = session.DeviceID
		peers := []models.Session{dup, playingSession("3", "u1", 40.7, -74.0, now)}
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Active: peers})
		if results[0].Violated {
			t.Error("2 effective streams must not exceed limit of 2")
		}
	})

	t.Run("paused peers do not count", func(t *testing.T) {
		p1 := playingSession("2", "u1", 40.7, -74.0, now)
		p1.State = models.StatePaused
		p2 := playingSession("3", "u1", 40.7, -74.0, now)
		p2.State = models.StatePaused
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Active: []models.Session{p1, p2}})
		if results[0].Violated {
			t.Error("paused peers must not count toward the stream limit")
		}
	})
}

func TestGeoRestriction(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		params   string
		country  string
		violated bool
	}{
		{"blocklist hit", `{"mode": "blocklist", "countries": ["CN"]}`, "CN", true},
		{"blocklist miss", `{"mode": "blocklist", "countries": ["CN"]}`, "US", false},
		{"no resolved country never violates", `{"mode": "blocklist", "countries": ["CN"]}`, "", false},
		{"legacy config defaults to blocklist", `{"countries": ["CN"]}`, "CN", true},
		{"allowlist miss violates", `{"mode": "allowlist", "countries": ["US", "CA"]}`, "CN", true},
		{"allowlist hit", `{"mode": "allowlist", "countries": ["US", "CA"]}`, "US", false},
		{"empty list never violates", `{"mode": "blocklist", "countries": []}`, "CN", false},
		{"case-insensitive country match", `{"countries": ["cn"]}`, "CN", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := activeRule(RuleGeoRestriction, tt.params)
			session := playingSession("1", "u1", 40.7, -74.0, now)
			session.Country = tt.country

			results := NewEngine().Evaluate(&session, []Rule{rule}, History{})
			if results[0].Violated != tt.violated {
				t.Errorf("violated = %v, want %v", results[0].Violated, tt.violated)
			}
			if tt.violated && results[0].Severity != SeverityHigh {
				t.Errorf("severity = %s, want high", results[0].Severity)
			}
		})
	}
}

func TestEvaluateScopeAndFailure(t *testing.T) {
	now := time.Now().UTC()
	session := playingSession("1", "u1", 51.5, -0.1, now)
	recent := []models.Session{playingSession("2", "u1", 40.7, -74.0, now.Add(-30*time.Minute))}

	t.Run("rule scoped to another user is skipped", func(t *testing.T) {
		other := "u2"
		rule := activeRule(RuleImpossibleTravel, `{"max_speed_kmh": 1000}`)
		rule.UserID = &other
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Recent: recent})
		if len(results) != 0 {
			t.Errorf("scoped rule should be skipped, got %d results", len(results))
		}
	})

	t.Run("rule scoped to the session user applies", func(t *testing.T) {
		u1 := "u1"
		rule := activeRule(RuleImpossibleTravel, `{"max_speed_kmh": 1000}`)
		rule.UserID = &u1
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Recent: recent})
		if len(results) != 1 || !results[0].Violated {
			t.Error("rule scoped to session user should evaluate and violate")
		}
	})

	t.Run("inactive rule is skipped", func(t *testing.T) {
		rule := activeRule(RuleImpossibleTravel, `{"max_speed_kmh": 1000}`)
		rule.IsActive = false
		results := NewEngine().Evaluate(&session, []Rule{rule}, History{Recent: recent})
		if len(results) != 0 {
			t.Errorf("inactive rule should be skipped, got %d results", len(results))
		}
	})

	t.Run("malformed params fail closed without aborting other rules", func(t *testing.T) {
		rules := []Rule{
			activeRule(RuleImpossibleTravel, `{"max_speed_kmh": "fast"}`),
			activeRule(RuleGeoRestriction, `{"countries": ["GB"]}`),
		}
		session.Country = "GB"
		results := NewEngine().Evaluate(&session, rules, History{Recent: recent})
		if len(results) != 2 {
			t.Fatalf("got %d results, want 2", len(results))
		}
		if results[0].Violated {
			t.Error("malformed rule must fail closed")
		}
		if !results[1].Violated {
			t.Error("well-formed rule must still evaluate")
		}
	})
}

func TestSeverityTrustPenalty(t *testing.T) {
	if SeverityHigh.TrustPenalty() != 20 {
		t.Errorf("high penalty = %d, want 20", SeverityHigh.TrustPenalty())
	}
	if SeverityWarning.TrustPenalty() != 10 {
		t.Errorf("warning penalty = %d, want 10", SeverityWarning.TrustPenalty())
	}
	if SeverityLow.TrustPenalty() != 5 {
		t.Errorf("low penalty = %d, want 5", SeverityLow.TrustPenalty())
	}
}

func TestHasKnownLocation(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		known    bool
	}{
		{"valid coordinates", 40.7, -74.0, true},
		{"zero sentinel", 0, 0, false},
		{"near-zero sentinel", 1e-9, -1e-9, false},
		{"NaN latitude", math.NaN(), -74.0, false},
		{"infinite longitude", 40.7, math.Inf(1), false},
		{"equator non-zero longitude", 0, 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasKnownLocation(tt.lat, tt.lon); got != tt.known {
				t.Errorf("HasKnownLocation(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.known)
			}
		})
	}
}

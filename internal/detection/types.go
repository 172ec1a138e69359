// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// coordinateEpsilon is the threshold below which coordinates are treated as
// the unknown-location sentinel (0, 0). Epsilon comparison avoids direct
// float equality; 1e-7 degrees is about 1.1cm at the equator.
const coordinateEpsilon = 1e-7

// HasKnownLocation reports whether the coordinates are finite and not the
// unknown-location sentinel. Rules that depend on distance do not apply to
// sessions without a known location.
func HasKnownLocation(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return math.Abs(lat) >= coordinateEpsilon || math.Abs(lon) >= coordinateEpsilon
}

// RuleType identifies the type of a detection rule.
type RuleType string

const (
	RuleImpossibleTravel      RuleType = "impossible_travel"
	RuleSimultaneousLocations RuleType = "simultaneous_locations"
	RuleDeviceVelocity        RuleType = "device_velocity"
	RuleConcurrentStreams     RuleType = "concurrent_streams"
	RuleGeoRestriction        RuleType = "geo_restriction"
)

// Severity grades a violation.
type Severity string

const (
	SeverityLow     Severity = "low"
	SeverityWarning Severity = "warning"
	SeverityHigh    Severity = "high"
)

// TrustPenalty returns the trust-score decrement applied for a violation of
// this severity.
func (s Severity) TrustPenalty() int {
	switch s {
	case SeverityHigh:
		return 20
	case SeverityWarning:
		return 10
	case SeverityLow:
		return 5
	default:
		return 0
	}
}

// Rule is a configured detection rule. UserID nil means the rule applies to
// all users on the server. Rules are read fresh at the start of each poll
// tick and treated as immutable for its duration.
type Rule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      RuleType        `json:"rule_type"`
	UserID    *string         `json:"user_id,omitempty"`
	Params    json.RawMessage `json:"params"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AppliesTo reports whether the rule is in scope for the given user.
func (r *Rule) AppliesTo(userID string) bool {
	return r.UserID == nil || *r.UserID == userID
}

// Result is the outcome of evaluating one rule against one session.
type Result struct {
	Rule     Rule            `json:"rule"`
	Violated bool            `json:"violated"`
	Severity Severity        `json:"severity"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
}

// Violation is the persisted record of a rule that evaluated true against a
// session. It is created exactly once per (rule, triggering session) pair and
// never mutated except acknowledgement.
type Violation struct {
	ID             string          `json:"id"`
	RuleID         string          `json:"rule_id"`
	UserID         string          `json:"user_id"`
	SessionID      string          `json:"session_id"`
	Severity       Severity        `json:"severity"`
	Data           json.RawMessage `json:"data,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// History is the bounded window of prior activity the engine evaluates a
// session against. The caller assembles it; the engine performs no I/O.
type History struct {
	// Recent holds the user's recent sessions from the store, newest first.
	// The triggering session itself must not be included.
	Recent []models.Session

	// Active holds the user's currently-active sessions from the cache as of
	// the previous completed cycle, excluding the triggering session.
	Active []models.Session
}

// Rule parameter payloads. Malformed payloads fail closed: the rule
// evaluates to not-violated rather than aborting the other rules.

// ImpossibleTravelParams configures the impossible_travel rule.
type ImpossibleTravelParams struct {
	MaxSpeedKmh float64 `json:"max_speed_kmh"`
}

// SimultaneousLocationsParams configures the simultaneous_locations rule.
type SimultaneousLocationsParams struct {
	MinDistanceKm float64 `json:"min_distance_km"`
}

// DeviceVelocityParams configures the device_velocity rule.
type DeviceVelocityParams struct {
	MaxIPs      int `json:"max_ips"`
	WindowHours int `json:"window_hours"`
}

// ConcurrentStreamsParams configures the concurrent_streams rule.
type ConcurrentStreamsParams struct {
	MaxStreams int `json:"max_streams"`
}

// GeoRestrictionParams configures the geo_restriction rule. Mode defaults to
// blocklist for legacy configurations that only carry a countries list.
type GeoRestrictionParams struct {
	Mode      string   `json:"mode,omitempty"` // "blocklist" or "allowlist"
	Countries []string `json:"countries"`
}

// Evidence payloads captured at violation time.

// TravelEvidence explains an impossible_travel violation.
type TravelEvidence struct {
	FromLatitude  float64   `json:"from_latitude"`
	FromLongitude float64   `json:"from_longitude"`
	FromCity      string    `json:"from_city,omitempty"`
	FromCountry   string    `json:"from_country,omitempty"`
	FromStartedAt time.Time `json:"from_started_at"`
	ToLatitude    float64   `json:"to_latitude"`
	ToLongitude   float64   `json:"to_longitude"`
	ToCity        string    `json:"to_city,omitempty"`
	ToCountry     string    `json:"to_country,omitempty"`
	DistanceKm    float64   `json:"distance_km"`
	ElapsedHours  float64   `json:"elapsed_hours"`
	SpeedKmh      float64   `json:"speed_kmh"`
	MaxSpeedKmh   float64   `json:"max_speed_kmh"`
}

// LocationPoint is one observed location in a simultaneous_locations
// violation.
type LocationPoint struct {
	SessionID string  `json:"session_id"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SimultaneousEvidence explains a simultaneous_locations violation. The
// conflicting session ids allow downstream correlation and deduplication.
type SimultaneousEvidence struct {
	Locations             []LocationPoint `json:"locations"`
	MaxDistanceKm         float64         `json:"max_distance_km"`
	MinDistanceKm         float64         `json:"min_distance_km_threshold"`
	ConflictingSessionIDs []string        `json:"conflicting_session_ids"`
}

// VelocityEvidence explains a device_velocity violation.
type VelocityEvidence struct {
	IPCount     int      `json:"ip_count"`
	MaxIPs      int      `json:"max_ips"`
	WindowHours int      `json:"window_hours"`
	IPAddresses []string `json:"ip_addresses"`
}

// StreamsEvidence explains a concurrent_streams violation.
type StreamsEvidence struct {
	StreamCount           int      `json:"stream_count"`
	MaxStreams            int      `json:"max_streams"`
	ConflictingSessionIDs []string `json:"conflicting_session_ids"`
}

// GeoEvidence explains a geo_restriction violation.
type GeoEvidence struct {
	Country   string   `json:"country"`
	Mode      string   `json:"mode"`
	Countries []string `json:"countries"`
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/models"
)

// Engine evaluates detection rules against newly observed sessions. It is
// stateless and performs no I/O: the caller supplies the active rules and a
// bounded history window, and is responsible for turning violated results
// into stored violations.
type Engine struct{}

// NewEngine creates a rule evaluation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// evaluator computes a single rule type against a session and its history.
// A nil evidence return means the rule did not violate.
type evaluator func(session *models.Session, rule *Rule, hist *History) (evidence any, severity Severity, err error)

var evaluators = map[RuleType]evaluator{
	RuleImpossibleTravel:      evaluateImpossibleTravel,
	RuleSimultaneousLocations: evaluateSimultaneousLocations,
	RuleDeviceVelocity:        evaluateDeviceVelocity,
	RuleConcurrentStreams:     evaluateConcurrentStreams,
	RuleGeoRestriction:        evaluateGeoRestriction,
}

// Evaluate runs every applicable rule against the session and returns one
// Result per rule evaluated. A rule scoped to a different user is skipped
// entirely. A rule that errors (malformed parameters, unknown type) fails
// closed: it contributes a not-violated result and does not abort the others.
func (e *Engine) Evaluate(session *models.Session, rules []Rule, hist History) []Result {
	results := make([]Result, 0, len(rules))

	for i := range rules {
		rule := &rules[i]
		if !rule.IsActive || !rule.AppliesTo(session.UserID) {
			continue
		}

		eval, ok := evaluators[rule.Type]
		if !ok {
			logging.Warn().Str("rule", rule.ID).Str("type", string(rule.Type)).Msg("unknown rule type, skipping")
			continue
		}

		evidence, severity, err := eval(session, rule, &hist)
		if err != nil {
			logging.Warn().Err(err).Str("rule", rule.ID).Str("type", string(rule.Type)).Msg("rule evaluation failed closed")
			results = append(results, Result{Rule: *rule, Violated: false})
			continue
		}
		if evidence == nil {
			results = append(results, Result{Rule: *rule, Violated: false})
			continue
		}

		data, err := marshalEvidence(evidence)
		if err != nil {
			logging.Warn().Err(err).Str("rule", rule.ID).Msg("evidence marshal failed, failing closed")
			results = append(results, Result{Rule: *rule, Violated: false})
			continue
		}

		results = append(results, Result{
			Rule:     *rule,
			Violated: true,
			Severity: severity,
			Evidence: data,
		})
	}

	return results
}

// Violations filters a result set down to the violated entries.
func Violations(results []Result) []Result {
	violated := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Violated {
			violated = append(violated, r)
		}
	}
	return violated
}

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// haversineKm computes the great-circle distance between two points in
// kilometers.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180.0

	lat1r := lat1 * degToRad
	lat2r := lat2 * degToRad
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// roundKm rounds distances and speeds to two decimals for evidence payloads.
func roundKm(f float64) float64 {
	return math.Round(f*100) / 100
}

func marshalEvidence(evidence any) (json.RawMessage, error) {
	data, err := json.Marshal(evidence)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func invalidParams(rule *Rule, err error) error {
	return fmt.Errorf("rule %s (%s): invalid params: %w", rule.ID, rule.Type, err)
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/metrics"
	"github.com/streamwarden/streamwarden/internal/models"
)

// ViolationStore persists violations.
type ViolationStore interface {
	InsertViolation(ctx context.Context, v *Violation) error
}

// TrustStore applies trust-score penalties. Implementations must clamp the
// score at zero.
type TrustStore interface {
	DecrementTrustScore(ctx context.Context, userID string, amount int) error
}

// Sink turns violated rule results into stored violations and trust-score
// penalties. Event publication is the orchestrator's job so that it happens
// in the PUBLISH stage, after the cache update.
type Sink struct {
	violations ViolationStore
	trust      TrustStore
}

// NewSink creates a violation sink.
func NewSink(violations ViolationStore, trust TrustStore) *Sink {
	return &Sink{violations: violations, trust: trust}
}

// Record persists one violation for the triggering session and applies the
// severity-dependent trust penalty. The trust update is best-effort: a failed
// decrement logs but does not discard the stored violation.
func (s *Sink) Record(ctx context.Context, session *models.Session, result *Result) (*Violation, error) {
	v := &Violation{
		ID:        uuid.NewString(),
		RuleID:    result.Rule.ID,
		UserID:    session.UserID,
		SessionID: session.ID,
		Severity:  result.Severity,
		Data:      result.Evidence,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.violations.InsertViolation(ctx, v); err != nil {
		return nil, fmt.Errorf("insert violation: %w", err)
	}

	if err := s.trust.DecrementTrustScore(ctx, session.UserID, result.Severity.TrustPenalty()); err != nil {
		logging.Error().Err(err).Str("user_id", session.UserID).Msg("trust score decrement failed")
	}

	metrics.ViolationsTotal.WithLabelValues(string(result.Rule.Type), string(result.Severity)).Inc()
	logging.Info().
		Str("rule", result.Rule.Name).
		Str("type", string(result.Rule.Type)).
		Str("severity", string(result.Severity)).
		Str("user_id", session.UserID).
		Str("session_id", session.ID).
		Msg("violation recorded")

	return v, nil
}

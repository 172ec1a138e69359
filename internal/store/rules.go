// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamwarden/streamwarden/internal/detection"
)

// FindActiveRules returns every enabled rule. The orchestrator reads this
// once per tick and treats the result as immutable for the tick's duration.
func (s *Store) FindActiveRules(ctx context.Context) ([]detection.Rule, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT CAST(id AS VARCHAR), name, type, CAST(user_id AS VARCHAR), params, is_active, created_at, updated_at
		FROM rules WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("find active rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []detection.Rule
	for rows.Next() {
		var r detection.Rule
		var ruleType, params string
		if err := rows.Scan(&r.ID, &r.Name, &ruleType, &r.UserID, &params, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Type = detection.RuleType(ruleType)
		r.Params = []byte(params)
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// InsertRule stores a rule. A nil UserID makes the rule global.
func (s *Store) InsertRule(ctx context.Context, rule *detection.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
		rule.UpdatedAt = now
	}
	params := string(rule.Params)
	if params == "" {
		params = "{}"
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO rules (id, name, type, user_id, params, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, string(rule.Type), rule.UserID, params, rule.IsActive, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.Name, err)
	}
	return nil
}

// SetRuleActive flips a rule on or off.
func (s *Store) SetRuleActive(ctx context.Context, id string, active bool) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE rules SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set rule %s active=%t: %w", id, active, err)
	}
	return nil
}

// InsertViolation stores a recorded violation.
func (s *Store) InsertViolation(ctx context.Context, v *detection.Violation) error {
	data := string(v.Data)
	if data == "" {
		data = "{}"
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO violations (id, rule_id, user_id, session_id, severity, data, acknowledged_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.RuleID, v.UserID, v.SessionID, string(v.Severity), data, v.AcknowledgedAt, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert violation: %w", err)
	}
	return nil
}

// FindViolationsByUser returns a user's violations, newest first.
func (s *Store) FindViolationsByUser(ctx context.Context, userID string, limit int) ([]detection.Violation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT CAST(id AS VARCHAR), CAST(rule_id AS VARCHAR), CAST(user_id AS VARCHAR), CAST(session_id AS VARCHAR), severity, data, acknowledged_at, created_at
		FROM violations WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("find violations for %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var violations []detection.Violation
	for rows.Next() {
		var v detection.Violation
		var severity, data string
		if err := rows.Scan(&v.ID, &v.RuleID, &v.UserID, &v.SessionID, &severity, &data, &v.AcknowledgedAt, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.Severity = detection.Severity(severity)
		v.Data = []byte(data)
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return violations, nil
}

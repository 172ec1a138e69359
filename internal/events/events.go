// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events publishes session lifecycle and violation events for
// downstream consumers (alerting, dashboards, automation).
//
// Delivery is best-effort and at-most-once from the engine's perspective:
// a failed publish is logged and counted, never retried, and never rolls
// back the persistence that already happened for the tick.
package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/streamwarden/streamwarden/internal/detection"
	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/metrics"
	"github.com/streamwarden/streamwarden/internal/models"
)

// Topics for the four event kinds.
const (
	TopicSessionStarted = "session.started"
	TopicSessionUpdated = "session.updated"
	TopicSessionStopped = "session.stopped"
	TopicViolationNew   = "violation.new"
)

// SessionEvent is the payload for the session lifecycle topics.
type SessionEvent struct {
	Type      string         `json:"type"` // started, updated, stopped
	Session   models.Session `json:"session"`
	Timestamp time.Time      `json:"timestamp"`
}

// ViolationEvent is the payload for violation.new. It carries enough detail
// for a consumer to alert without a database round-trip.
type ViolationEvent struct {
	Violation detection.Violation `json:"violation"`
	RuleName  string              `json:"rule_name"`
	RuleType  detection.RuleType  `json:"rule_type"`
	Session   models.Session      `json:"session"`
	Timestamp time.Time           `json:"timestamp"`
}

// Publisher fans events out over a watermill publisher. A nil underlying
// publisher disables publication entirely (events are dropped silently),
// which is the configuration for standalone deployments without NATS.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher wraps a watermill publisher. Pass nil to disable publishing.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// SessionStarted publishes a session.started event.
func (p *Publisher) SessionStarted(session *models.Session) {
	p.publishSession(TopicSessionStarted, "started", session)
}

// SessionUpdated publishes a session.updated event.
func (p *Publisher) SessionUpdated(session *models.Session) {
	p.publishSession(TopicSessionUpdated, "updated", session)
}

// SessionStopped publishes a session.stopped event.
func (p *Publisher) SessionStopped(session *models.Session) {
	p.publishSession(TopicSessionStopped, "stopped", session)
}

// ViolationNew publishes a violation.new event.
func (p *Publisher) ViolationNew(violation *detection.Violation, rule *detection.Rule, session *models.Session) {
	p.publish(TopicViolationNew, &ViolationEvent{
		Violation: *violation,
		RuleName:  rule.Name,
		RuleType:  rule.Type,
		Session:   *session,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publishSession(topic, eventType string, session *models.Session) {
	p.publish(topic, &SessionEvent{
		Type:      eventType,
		Session:   *session,
		Timestamp: time.Now().UTC(),
	})
}

func (p *Publisher) publish(topic string, payload any) {
	if p.pub == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		logging.Error().Err(err).Str("topic", topic).Msg("event payload marshal failed")
		return
	}

	msg := message.NewMessage(uuid.NewString(), data)
	if err := p.pub.Publish(topic, msg); err != nil {
		metrics.PublishErrors.WithLabelValues(topic).Inc()
		logging.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	if p.pub == nil {
		return nil
	}
	return p.pub.Close()
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type fakeViolationStore struct {
	inserted  []*Violation
	insertErr error
}

func (f *fakeViolationStore) InsertViolation(_ context.Context, v *Violation) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, v)
	return nil
}

type fakeTrustStore struct {
	decrements map[string]int
	err        error
}

func (f *fakeTrustStore) DecrementTrustScore(_ context.Context, userID string, amount int) error {
	if f.err != nil {
		return f.err
	}
	if f.decrements == nil {
		f.decrements = map[string]int{}
	}
	f.decrements[userID] += amount
	return nil
}

func TestSinkRecord(t *testing.T) {
	violations := &fakeViolationStore{}
	trust := &fakeTrustStore{}
	sink := NewSink(violations, trust)

	session := playingSession("s1", "u1", 40.7, -74.0, time.Now().UTC())
	result := &Result{
		Rule:     activeRule(RuleImpossibleTravel, `{"max_speed_kmh": 1000}`),
		Violated: true,
		Severity: SeverityHigh,
		Evidence: json.RawMessage(`{"distance_km": 5570}`),
	}

	v, err := sink.Record(context.Background(), &session, result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID == "" {
		t.Error("violation id must be assigned")
	}
	if v.UserID != "u1" || v.SessionID != "s1" {
		t.Errorf("violation user/session = %s/%s, want u1/s1", v.UserID, v.SessionID)
	}
	if len(violations.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(violations.inserted))
	}
	if trust.decrements["u1"] != 20 {
		t.Errorf("trust decrement = %d, want 20 for high severity", trust.decrements["u1"])
	}
}

func TestSinkRecordInsertFailure(t *testing.T) {
	violations := &fakeViolationStore{insertErr: errors.New("disk full")}
	trust := &fakeTrustStore{}
	sink := NewSink(violations, trust)

	session := playingSession("s1", "u1", 40.7, -74.0, time.Now().UTC())
	result := &Result{Rule: activeRule(RuleConcurrentStreams, `{"max_streams": 2}`), Violated: true, Severity: SeverityLow}

	if _, err := sink.Record(context.Background(), &session, result); err == nil {
		t.Fatal("expected error from failed insert")
	}
	if len(trust.decrements) != 0 {
		t.Error("trust penalty must not apply when the violation insert fails")
	}
}

func TestSinkRecordTrustFailureIsNonFatal(t *testing.T) {
	violations := &fakeViolationStore{}
	trust := &fakeTrustStore{err: errors.New("locked")}
	sink := NewSink(violations, trust)

	session := playingSession("s1", "u1", 40.7, -74.0, time.Now().UTC())
	result := &Result{Rule: activeRule(RuleGeoRestriction, `{"countries":["CN"]}`), Violated: true, Severity: SeverityHigh}

	v, err := sink.Record(context.Background(), &session, result)
	if err != nil {
		t.Fatalf("trust store failure must not fail the record: %v", err)
	}
	if v == nil || len(violations.inserted) != 1 {
		t.Error("violation must still be persisted")
	}
}

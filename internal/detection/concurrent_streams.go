// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// evaluateConcurrentStreams flags accounts exceeding their stream limit.
// Peers on the triggering session's device, and duplicate sessions from the
// same device, collapse to one stream.
func evaluateConcurrentStreams(session *models.Session, rule *Rule, hist *History) (any, Severity, error) {
	var params ConcurrentStreamsParams
	if err := json.Unmarshal(rule.Params, &params); err != nil {
		return nil, "", invalidParams(rule, err)
	}
	if params.MaxStreams <= 0 {
		return nil, "", invalidParams(rule, fmt.Errorf("max_streams must be positive, got %d", params.MaxStreams))
	}

	seenDevices := map[string]struct{}{}
	if session.DeviceID != "" {
		seenDevices[session.DeviceID] = struct{}{}
	}

	var conflicting []string
	for i := range hist.Active {
		peer := &hist.Active[i]
		if peer.State != models.StatePlaying {
			continue
		}
		if peer.DeviceID != "" {
			if _, dup := seenDevices[peer.DeviceID]; dup {
				continue
			}
			seenDevices[peer.DeviceID] = struct{}{}
		}
		conflicting = append(conflicting, peer.ID)
	}

	total := len(conflicting) + 1 // the triggering session itself
	if total <= params.MaxStreams {
		return nil, "", nil
	}

	evidence := StreamsEvidence{
		StreamCount:           total,
		MaxStreams:            params.MaxStreams,
		ConflictingSessionIDs: conflicting,
	}
	return evidence, SeverityLow, nil
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// evaluateDeviceVelocity flags accounts hopping between too many distinct IP
// addresses within the trailing window. The triggering session's own IP
// counts toward the total.
func evaluateDeviceVelocity(session *models.Session, rule *Rule, hist *History) (any, Severity, error) {
	var params DeviceVelocityParams
	if err := json.Unmarshal(rule.Params, &params); err != nil {
		return nil, "", invalidParams(rule, err)
	}
	if params.MaxIPs <= 0 || params.WindowHours <= 0 {
		return nil, "", invalidParams(rule, fmt.Errorf("max_ips and window_hours must be positive, got %d/%d", params.MaxIPs, params.WindowHours))
	}

	cutoff := session.StartedAt.Add(-time.Duration(params.WindowHours) * time.Hour)

	seen := make(map[string]struct{})
	if session.IPAddress != "" {
		seen[session.IPAddress] = struct{}{}
	}
	for i := range hist.Recent {
		prior := &hist.Recent[i]
		if prior.IPAddress == "" || prior.StartedAt.Before(cutoff) {
			continue
		}
		seen[prior.IPAddress] = struct{}{}
	}

	if len(seen) <= params.MaxIPs {
		return nil, "", nil
	}

	ips := make([]string, 0, len(seen))
	for ip := range seen {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	evidence := VelocityEvidence{
		IPCount:     len(ips),
		MaxIPs:      params.MaxIPs,
		WindowHours: params.WindowHours,
		IPAddresses: ips,
	}
	return evidence, SeverityWarning, nil
}

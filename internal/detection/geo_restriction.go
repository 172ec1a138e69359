// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package detection

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

const (
	// GeoModeBlocklist violates when the session country is in the list.
	GeoModeBlocklist = "blocklist"
	// GeoModeAllowlist violates when the session country is absent from the list.
	GeoModeAllowlist = "allowlist"
)

// evaluateGeoRestriction enforces country block/allow lists. Sessions without
// a resolved country never violate, and an empty country list disables the
// rule in either mode.
func evaluateGeoRestriction(session *models.Session, rule *Rule, _ *History) (any, Severity, error) {
	var params GeoRestrictionParams
	if err := json.Unmarshal(rule.Params, &params); err != nil {
		return nil, "", invalidParams(rule, err)
	}

	// Legacy configurations carry only a countries list; treat as blocklist.
	mode := params.Mode
	if mode == "" {
		mode = GeoModeBlocklist
	}
	if mode != GeoModeBlocklist && mode != GeoModeAllowlist {
		return nil, "", invalidParams(rule, fmt.Errorf("unknown mode %q", params.Mode))
	}

	if session.Country == "" || len(params.Countries) == 0 {
		return nil, "", nil
	}

	listed := false
	for _, c := range params.Countries {
		if strings.EqualFold(c, session.Country) {
			listed = true
			break
		}
	}

	violated := (mode == GeoModeBlocklist && listed) || (mode == GeoModeAllowlist && !listed)
	if !violated {
		return nil, "", nil
	}

	evidence := GeoEvidence{
		Country:   session.Country,
		Mode:      mode,
		Countries: params.Countries,
	}
	return evidence, SeverityHigh, nil
}

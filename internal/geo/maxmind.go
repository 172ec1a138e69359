// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// MaxMindWebProvider resolves locations through the MaxMind GeoLite2 web
// service. Requires a free MaxMind account id and license key; the free tier
// allows 1,000 lookups per day.
type MaxMindWebProvider struct {
	client     *http.Client
	accountID  string
	licenseKey string
	baseURL    string
}

type maxMindResponse struct {
	City struct {
		Names map[string]string `json:"names"`
	} `json:"city"`
	Country struct {
		ISOCode string `json:"iso_code"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

type maxMindError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewMaxMindWebProvider creates a GeoLite2 web service provider.
func NewMaxMindWebProvider(accountID, licenseKey string) *MaxMindWebProvider {
	return &MaxMindWebProvider{
		client:     &http.Client{Timeout: 10 * time.Second},
		accountID:  accountID,
		licenseKey: licenseKey,
		baseURL:    "https://geolite.info/geoip/v2.1/city",
	}
}

// Name returns the provider name.
func (p *MaxMindWebProvider) Name() string {
	return "maxmind-geolite2"
}

// Available reports whether credentials are configured.
func (p *MaxMindWebProvider) Available() bool {
	return p.accountID != "" && p.licenseKey != ""
}

// Lookup queries the GeoLite2 City endpoint with HTTP basic auth.
func (p *MaxMindWebProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+ipAddress, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build maxmind request: %w", err)
	}
	req.SetBasicAuth(p.accountID, p.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("maxmind request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var mmErr maxMindError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&mmErr); decodeErr == nil && mmErr.Code != "" {
			return nil, fmt.Errorf("maxmind lookup failed: %s (%s)", mmErr.Error, mmErr.Code)
		}
		return nil, fmt.Errorf("maxmind returned status %d", resp.StatusCode)
	}

	var result maxMindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode maxmind response: %w", err)
	}

	return &models.Geolocation{
		IPAddress:   ipAddress,
		City:        result.City.Names["en"],
		Country:     result.Country.ISOCode,
		Latitude:    result.Location.Latitude,
		Longitude:   result.Location.Longitude,
		LastUpdated: time.Now().UTC(),
	}, nil
}

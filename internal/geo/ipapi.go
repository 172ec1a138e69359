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
	"golang.org/x/time/rate"

	"github.com/streamwarden/streamwarden/internal/models"
)

// IPAPIProvider resolves locations through the free ip-api.com service.
// No API key, but the free tier is limited to 45 requests per minute; the
// limiter drops lookups over that budget rather than queueing them, since a
// stale lookup is worthless to a poll tick that has already finished.
type IPAPIProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

type ipAPIResponse struct {
	Status      string  `json:"status"` // "success" or "fail"
	Message     string  `json:"message"`
	CountryCode string  `json:"countryCode"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// NewIPAPIProvider creates an ip-api.com provider at the free-tier rate.
func NewIPAPIProvider() *IPAPIProvider {
	return &IPAPIProvider{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/45), 45),
		baseURL: "http://ip-api.com/json",
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// Available always reports true; the service needs no credentials.
func (p *IPAPIProvider) Available() bool {
	return true
}

// Lookup queries ip-api.com, respecting the free-tier rate limit.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if !p.limiter.Allow() {
		return nil, fmt.Errorf("rate limit exceeded for ip-api.com (45 req/min)")
	}

	url := fmt.Sprintf("%s/%s?fields=status,message,countryCode,city,lat,lon", p.baseURL, ipAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build ip-api request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ip-api request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api response: %w", err)
	}
	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api lookup failed: %s", result.Message)
	}

	return &models.Geolocation{
		IPAddress:   ipAddress,
		City:        result.City,
		Country:     result.CountryCode,
		Latitude:    result.Lat,
		Longitude:   result.Lon,
		LastUpdated: time.Now().UTC(),
	}, nil
}

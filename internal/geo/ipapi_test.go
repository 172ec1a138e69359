// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIPAPIProviderLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/8.8.8.8") {
			t.Errorf("path = %s, want IP in path", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","countryCode":"US","city":"Mountain View","lat":37.386,"lon":-122.0838}`))
	}))
	defer srv.Close()

	p := NewIPAPIProvider()
	p.baseURL = srv.URL

	geo, err := p.Lookup(context.Background(), "8.8.8.8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geo.Country != "US" || geo.City != "Mountain View" {
		t.Errorf("geo = %+v", geo)
	}
	if geo.Latitude == 0 || geo.Longitude == 0 {
		t.Error("coordinates must be populated")
	}
}

func TestIPAPIProviderFailStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer srv.Close()

	p := NewIPAPIProvider()
	p.baseURL = srv.URL

	if _, err := p.Lookup(context.Background(), "240.0.0.1"); err == nil {
		t.Fatal("expected error for fail status")
	}
}

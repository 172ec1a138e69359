// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/poller"
)

// fakePoller records control calls.
type fakePoller struct {
	started   int
	stopped   int
	triggered int
	accept    bool
	status    poller.Status
}

func (f *fakePoller) Start()                { f.started++ }
func (f *fakePoller) Stop()                 { f.stopped++ }
func (f *fakePoller) Trigger() bool         { f.triggered++; return f.accept }
func (f *fakePoller) Status() poller.Status { return f.status }

func newTestServer(t *testing.T, p PollerControl) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(DefaultConfig(), p).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakePoller{})
	resp := do(t, http.MethodGet, srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakePoller{})
	resp := do(t, http.MethodGet, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPollerStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &fakePoller{status: poller.Status{
		Running:    true,
		Enabled:    true,
		TickCount:  7,
		LastTickAt: &now,
	}}
	srv := newTestServer(t, p)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/poller/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got poller.Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Running || got.TickCount != 7 || got.LastTickAt == nil {
		t.Errorf("status = %+v", got)
	}
}

func TestPollerTrigger(t *testing.T) {
	p := &fakePoller{accept: true}
	srv := newTestServer(t, p)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/poller/trigger")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if p.triggered != 1 {
		t.Errorf("trigger calls = %d, want 1", p.triggered)
	}

	p.accept = false
	resp = do(t, http.MethodPost, srv.URL+"/api/v1/poller/trigger")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 when trigger is rejected", resp.StatusCode)
	}
}

func TestPollerStartStop(t *testing.T) {
	p := &fakePoller{}
	srv := newTestServer(t, p)

	if resp := do(t, http.MethodPost, srv.URL+"/api/v1/poller/start"); resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/api/v1/poller/stop"); resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	if p.started != 1 || p.stopped != 1 {
		t.Errorf("calls = start:%d stop:%d, want 1/1", p.started, p.stopped)
	}

	// GET on a control endpoint is not routed.
	if resp := do(t, http.MethodGet, srv.URL+"/api/v1/poller/start"); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET start status = %d, want 405", resp.StatusCode)
	}
}

func TestControlEndpointsAreRateLimited(t *testing.T) {
	p := &fakePoller{}
	cfg := Config{RateLimitRequests: 3, RateLimitWindow: time.Minute}
	srv := httptest.NewServer(NewRouter(cfg, p).Handler())
	t.Cleanup(srv.Close)

	var limited bool
	for i := 0; i < 5; i++ {
		resp := do(t, http.MethodGet, srv.URL+"/api/v1/poller/status")
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("expected a 429 after exhausting the rate limit")
	}

	// Health stays reachable regardless.
	if resp := do(t, http.MethodGet, srv.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

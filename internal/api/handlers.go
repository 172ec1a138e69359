// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/logging"
)

// writeJSON encodes data and writes it to the response. Encode failures are
// logged but not surfaced; headers are already sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("encode JSON response failed")
	}
}

type statusResponse struct {
	Status string `json:"status"`
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (rt *Router) pollerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.poller.Status())
}

// pollerTrigger requests an immediate poll tick. 202 because the tick runs
// asynchronously in the poll loop; 409 when the loop is down or a trigger is
// already queued.
func (rt *Router) pollerTrigger(w http.ResponseWriter, _ *http.Request) {
	if !rt.poller.Trigger() {
		writeJSON(w, http.StatusConflict, statusResponse{Status: "trigger rejected"})
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "tick scheduled"})
}

func (rt *Router) pollerStart(w http.ResponseWriter, _ *http.Request) {
	rt.poller.Start()
	writeJSON(w, http.StatusOK, statusResponse{Status: "poller enabled"})
}

func (rt *Router) pollerStop(w http.ResponseWriter, _ *http.Request) {
	rt.poller.Stop()
	writeJSON(w, http.StatusOK, statusResponse{Status: "poller disabled"})
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// PlexClient talks to a Plex Media Server over its REST API using
// X-Plex-Token authentication.
type PlexClient struct {
	server     *models.Server
	httpClient *http.Client
}

// NewPlexClient creates a client for one Plex server. The server URL must not
// include a trailing slash; one is stripped if present.
func NewPlexClient(server *models.Server) *PlexClient {
	srv := *server
	srv.URL = strings.TrimSuffix(srv.URL, "/")
	return &PlexClient{
		server:     &srv,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Server returns the configured server.
func (c *PlexClient) Server() *models.Server {
	return c.server
}

// FetchSessions retrieves active sessions from GET /status/sessions and
// normalizes them. Sessions without user or player information are skipped:
// Plex occasionally reports orphaned transcoder entries that carry neither.
func (c *PlexClient) FetchSessions(ctx context.Context) ([]models.NormalizedSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server.URL+"/status/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("build plex sessions request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.server.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plex sessions request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("plex sessions returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload models.PlexSessionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode plex sessions: %w", err)
	}

	sessions := make([]models.NormalizedSession, 0, len(payload.MediaContainer.Metadata))
	for i := range payload.MediaContainer.Metadata {
		raw := &payload.MediaContainer.Metadata[i]
		if raw.User == nil || raw.Player == nil {
			continue
		}
		sessions = append(sessions, NormalizePlexSession(raw))
	}
	return sessions, nil
}

// NormalizePlexSession maps a raw Plex session to the canonical shape. Pure:
// the same input always produces the same output, and missing optional fields
// default to empty-string/zero.
func NormalizePlexSession(raw *models.PlexSession) models.NormalizedSession {
	s := models.NormalizedSession{
		SessionKey:      raw.SessionKey,
		RatingKey:       raw.RatingKey,
		MediaType:       plexMediaType(raw.Type),
		Title:           raw.Title,
		SeriesTitle:     raw.GrandparentTitle,
		Season:          raw.ParentIndex,
		Episode:         raw.Index,
		Year:            raw.Year,
		State:           models.StatePlaying,
		TotalDurationMs: raw.Duration,
		ProgressMs:      raw.ViewOffset,
	}

	// Episodes carry their artwork on the series (grandparent); movies on
	// the item itself.
	if s.MediaType == models.MediaTypeEpisode && raw.GrandparentThumb != "" {
		s.PosterPath = raw.GrandparentThumb
	} else {
		s.PosterPath = raw.Thumb
	}

	if raw.User != nil {
		s.ExternalUserID = strconv.Itoa(raw.User.ID)
		s.Username = raw.User.Title
		s.UserThumb = raw.User.Thumb
	}

	if raw.Player != nil {
		s.Player = raw.Player.Title
		s.DeviceID = raw.Player.MachineID
		s.Product = raw.Player.Product
		s.Device = raw.Player.Device
		s.Platform = raw.Player.Platform
		// Remote clients sit behind the public address; the private
		// address would geolocate to the server's own network.
		if !raw.Player.Local && raw.Player.RemotePublicAddress != "" {
			s.IPAddress = raw.Player.RemotePublicAddress
		} else {
			s.IPAddress = raw.Player.Address
		}
		if strings.EqualFold(raw.Player.State, "paused") {
			s.State = models.StatePaused
		}
	}

	// Transcode is a server decision, not a bitrate heuristic.
	if raw.TranscodeSession != nil {
		s.IsTranscode = raw.TranscodeSession.VideoDecision == "transcode" ||
			raw.TranscodeSession.AudioDecision == "transcode"
	}

	if len(raw.Media) > 0 {
		s.Bitrate = raw.Media[0].Bitrate
		s.QualityLabel = plexQualityLabel(raw.Media[0].VideoResolution)
	}

	return s
}

func plexMediaType(t string) models.MediaType {
	switch strings.ToLower(t) {
	case "episode":
		return models.MediaTypeEpisode
	case "track":
		return models.MediaTypeTrack
	default:
		return models.MediaTypeMovie
	}
}

// plexQualityLabel turns Plex's videoResolution values ("4k", "1080", "720",
// "sd") into a display label.
func plexQualityLabel(resolution string) string {
	switch strings.ToLower(resolution) {
	case "":
		return ""
	case "4k":
		return "4K"
	case "sd":
		return "SD"
	default:
		return resolution + "p"
	}
}

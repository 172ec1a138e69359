// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

// JellyfinClient talks to a Jellyfin server over its REST API using
// X-Emby-Token authentication (Jellyfin kept the Emby header name).
type JellyfinClient struct {
	server     *models.Server
	httpClient *http.Client
}

// NewJellyfinClient creates a client for one Jellyfin server.
func NewJellyfinClient(server *models.Server) *JellyfinClient {
	srv := *server
	srv.URL = strings.TrimSuffix(srv.URL, "/")
	return &JellyfinClient{
		server:     &srv,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Server returns the configured server.
func (c *JellyfinClient) Server() *models.Server {
	return c.server
}

// FetchSessions retrieves sessions from GET /Sessions and normalizes the ones
// with active playback. Jellyfin reports every connected client; sessions
// without a NowPlayingItem are idle and skipped.
func (c *JellyfinClient) FetchSessions(ctx context.Context) ([]models.NormalizedSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.server.URL+"/Sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("build jellyfin sessions request: %w", err)
	}
	req.Header.Set("X-Emby-Token", c.server.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jellyfin sessions request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("jellyfin sessions returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw []models.JellyfinSession
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode jellyfin sessions: %w", err)
	}

	sessions := make([]models.NormalizedSession, 0, len(raw))
	for i := range raw {
		if raw[i].NowPlayingItem == nil {
			continue
		}
		sessions = append(sessions, NormalizeJellyfinSession(&raw[i]))
	}
	return sessions, nil
}

// NormalizeJellyfinSession maps a raw Jellyfin session to the canonical
// shape. Pure: no clock, no randomness, no I/O. Tick values (100ns units) are
// converted to milliseconds.
func NormalizeJellyfinSession(raw *models.JellyfinSession) models.NormalizedSession {
	s := models.NormalizedSession{
		SessionKey:     raw.ID,
		ExternalUserID: raw.UserID,
		Username:       raw.UserName,
		Player:         raw.DeviceName,
		DeviceID:       raw.DeviceID,
		Product:        raw.Client,
		Device:         raw.DeviceName,
		Platform:       raw.Client,
		IPAddress:      stripPort(raw.RemoteEndPoint),
		State:          models.StatePlaying,
	}

	if raw.UserPrimaryImageTag != "" {
		s.UserThumb = "/Users/" + raw.UserID + "/Images/Primary?tag=" + raw.UserPrimaryImageTag
	}

	if item := raw.NowPlayingItem; item != nil {
		s.RatingKey = item.ID
		s.MediaType = jellyfinMediaType(item.Type)
		s.Title = item.Name
		s.SeriesTitle = item.SeriesName
		s.Season = item.ParentIndexNumber
		s.Episode = item.IndexNumber
		s.Year = item.ProductionYear
		s.TotalDurationMs = item.RunTimeTicks / models.TicksPerMillisecond
		s.PosterPath = jellyfinPosterPath(item, s.MediaType)
	}

	if ps := raw.PlayState; ps != nil {
		s.ProgressMs = ps.PositionTicks / models.TicksPerMillisecond
		if ps.IsPaused {
			s.State = models.StatePaused
		}
		s.IsTranscode = strings.EqualFold(ps.PlayMethod, "Transcode")
	}

	if ti := raw.TranscodingInfo; ti != nil {
		// Jellyfin reports bits per second; the canonical unit is Kbps.
		s.Bitrate = ti.Bitrate / 1000
		s.QualityLabel = jellyfinQualityLabel(ti.Height)
	}

	return s
}

func jellyfinMediaType(t string) models.MediaType {
	switch t {
	case "Episode":
		return models.MediaTypeEpisode
	case "Audio":
		return models.MediaTypeTrack
	default:
		return models.MediaTypeMovie
	}
}

// jellyfinPosterPath builds the image path for the session's content.
// Episodes use the series artwork, everything else its own primary image.
func jellyfinPosterPath(item *models.JellyfinNowPlayingItem, mediaType models.MediaType) string {
	if mediaType == models.MediaTypeEpisode && item.SeriesID != "" && item.SeriesPrimaryImageTag != "" {
		return "/Items/" + item.SeriesID + "/Images/Primary?tag=" + item.SeriesPrimaryImageTag
	}
	tag := item.PrimaryImageTag
	if tag == "" {
		tag = item.ImageTags["Primary"]
	}
	if tag == "" {
		return ""
	}
	return "/Items/" + item.ID + "/Images/Primary?tag=" + tag
}

func jellyfinQualityLabel(height int) string {
	switch {
	case height <= 0:
		return ""
	case height >= 2160:
		return "4K"
	case height >= 1080:
		return "1080p"
	case height >= 720:
		return "720p"
	default:
		return "SD"
	}
}

// stripPort removes the port from a RemoteEndPoint value, which Jellyfin
// reports as "ip:port" (and occasionally as a bare IP).
func stripPort(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(endpoint); err == nil {
		return host
	}
	return strings.Trim(endpoint, "[]")
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// ProviderType identifies a media-server backend variant.
type ProviderType string

const (
	ProviderPlex     ProviderType = "plex"
	ProviderJellyfin ProviderType = "jellyfin"
)

// Server is a configured media-server instance. Server records are owned by
// the configuration layer and are read-only to the polling engine.
type Server struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Type  ProviderType `json:"type"`
	URL   string       `json:"url"`
	Token string       `json:"-"`
}

// MediaType classifies the content of a playback session.
type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
	MediaTypeTrack   MediaType = "track"
)

// PlayState is the playback state reported by the provider.
type PlayState string

const (
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
)

// NormalizedSession is the canonical session shape produced by the
// per-provider normalizers. SessionKey is stable for the life of a single
// playback session but unique only within one server; the engine always
// scopes it as (ServerID, SessionKey).
type NormalizedSession struct {
	SessionKey     string `json:"session_key"`
	ExternalUserID string `json:"external_user_id"`
	Username       string `json:"username"`
	UserThumb      string `json:"user_thumb"`

	RatingKey   string    `json:"rating_key"`
	MediaType   MediaType `json:"media_type"`
	Title       string    `json:"title"`
	SeriesTitle string    `json:"series_title"`
	Season      int       `json:"season"`
	Episode     int       `json:"episode"`
	Year        int       `json:"year"`
	PosterPath  string    `json:"poster_path"`

	IPAddress string `json:"ip_address"`
	Player    string `json:"player"`
	DeviceID  string `json:"device_id"`
	Product   string `json:"product"`
	Device    string `json:"device"`
	Platform  string `json:"platform"`

	Bitrate      int    `json:"bitrate"`
	IsTranscode  bool   `json:"is_transcode"`
	QualityLabel string `json:"quality_label"`

	State           PlayState `json:"state"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	ProgressMs      int64     `json:"progress_ms"`
}

// Session is the persisted superset of NormalizedSession. It is created the
// first time a (ServerID, SessionKey) pair is observed, patched on every
// subsequent observation while active, and closed the first cycle in which
// the provider no longer reports it. A closed Session is never re-opened.
type Session struct {
	NormalizedSession

	ID       string `json:"id"`
	ServerID string `json:"server_id"`
	UserID   string `json:"user_id"`

	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at,omitempty"`
	DurationMs *int64     `json:"duration_ms,omitempty"`
}

// Key returns the cache key scoping a session to its server.
func (s *Session) Key() string {
	return s.ServerID + ":" + s.SessionKey
}

// User is a media-server account as known locally. TrustScore starts at 100
// and is decremented by a severity-dependent penalty on each violation,
// clamped at zero.
type User struct {
	ID         string    `json:"id"`
	ServerID   string    `json:"server_id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	ThumbURL   string    `json:"thumb_url"`
	IsOwner    bool      `json:"is_owner"`
	TrustScore int       `json:"trust_score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DefaultTrustScore is the score assigned to newly sighted users.
const DefaultTrustScore = 100

// Geolocation is the coarse location resolved for an IP address. The
// coordinates (0, 0) mean the location is unknown.
type Geolocation struct {
	IPAddress   string    `json:"ip_address"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated time.Time `json:"last_updated"`
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

// Plex active-session payloads from GET /status/sessions.
// Only the fields the normalizer consumes are modeled; the endpoint returns
// considerably more.

// PlexSessionsResponse is the top-level response from /status/sessions.
type PlexSessionsResponse struct {
	MediaContainer PlexSessionsContainer `json:"MediaContainer"`
}

// PlexSessionsContainer wraps the active sessions array.
type PlexSessionsContainer struct {
	Size     int           `json:"size"`
	Metadata []PlexSession `json:"Metadata"`
}

// PlexSession is a single active playback session.
type PlexSession struct {
	SessionKey string `json:"sessionKey"`

	RatingKey            string `json:"ratingKey"`
	ParentRatingKey      string `json:"parentRatingKey,omitempty"`
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"`
	Type                 string `json:"type"` // "movie", "episode", "track"
	Title                string `json:"title"`
	GrandparentTitle     string `json:"grandparentTitle,omitempty"`
	ParentIndex          int    `json:"parentIndex,omitempty"` // season number
	Index                int    `json:"index,omitempty"`       // episode number
	Year                 int    `json:"year,omitempty"`
	Thumb                string `json:"thumb,omitempty"`
	GrandparentThumb     string `json:"grandparentThumb,omitempty"`

	ViewOffset int64 `json:"viewOffset"` // milliseconds
	Duration   int64 `json:"duration"`   // milliseconds

	User             *PlexSessionUser      `json:"User,omitempty"`
	Player           *PlexSessionPlayer    `json:"Player,omitempty"`
	TranscodeSession *PlexTranscodeSession `json:"TranscodeSession,omitempty"`
	Media            []PlexMedia           `json:"Media,omitempty"`
	Session          *PlexSessionInfo      `json:"Session,omitempty"`
}

// PlexSessionUser identifies the account watching the session.
type PlexSessionUser struct {
	ID    int    `json:"id"`
	Title string `json:"title"` // username
	Thumb string `json:"thumb"`
}

// PlexSessionPlayer describes the client device.
type PlexSessionPlayer struct {
	Address             string `json:"address"`
	RemotePublicAddress string `json:"remotePublicAddress,omitempty"`
	Device              string `json:"device"`
	MachineID           string `json:"machineIdentifier"`
	Platform            string `json:"platform"`
	Product             string `json:"product"`
	State               string `json:"state"` // "playing", "paused", "buffering"
	Title               string `json:"title"` // device friendly name
	Local               bool   `json:"local"`
}

// PlexTranscodeSession carries the server's transcode decision. The decision
// fields, not bitrate, determine whether a session counts as transcoding.
type PlexTranscodeSession struct {
	VideoDecision string `json:"videoDecision"` // "transcode", "copy", "directplay"
	AudioDecision string `json:"audioDecision"`
	Protocol      string `json:"protocol"`
}

// PlexMedia carries source quality information.
type PlexMedia struct {
	Bitrate         int    `json:"bitrate"` // Kbps
	VideoResolution string `json:"videoResolution"`
}

// PlexSessionInfo carries per-session bandwidth details.
type PlexSessionInfo struct {
	ID        string `json:"id"`
	Bandwidth int    `json:"bandwidth"`
	Location  string `json:"location"` // "lan", "wan"
}

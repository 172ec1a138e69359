// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

// Jellyfin active-session payloads from GET /Sessions.
// Durations and positions arrive in ticks (100ns units); the normalizer
// converts them to milliseconds.

// TicksPerMillisecond converts Jellyfin ticks (100ns) to milliseconds.
const TicksPerMillisecond = 10_000

// JellyfinSession is an active session from the Jellyfin Sessions API.
type JellyfinSession struct {
	ID                 string `json:"Id"`
	Client             string `json:"Client"`
	DeviceID           string `json:"DeviceId"`
	DeviceName         string `json:"DeviceName"`
	ApplicationVersion string `json:"ApplicationVersion"`

	UserID              string `json:"UserId"`
	UserName            string `json:"UserName"`
	UserPrimaryImageTag string `json:"UserPrimaryImageTag,omitempty"`

	RemoteEndPoint string `json:"RemoteEndPoint"`

	NowPlayingItem  *JellyfinNowPlayingItem  `json:"NowPlayingItem,omitempty"`
	PlayState       *JellyfinPlayState       `json:"PlayState,omitempty"`
	TranscodingInfo *JellyfinTranscodingInfo `json:"TranscodingInfo,omitempty"`
}

// JellyfinNowPlayingItem is the content currently playing in a session.
type JellyfinNowPlayingItem struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
	Type string `json:"Type"` // "Movie", "Episode", "Audio"

	SeriesID          string `json:"SeriesId,omitempty"`
	SeriesName        string `json:"SeriesName,omitempty"`
	IndexNumber       int    `json:"IndexNumber,omitempty"`       // episode number
	ParentIndexNumber int    `json:"ParentIndexNumber,omitempty"` // season number

	RunTimeTicks   int64 `json:"RunTimeTicks"`
	ProductionYear int   `json:"ProductionYear,omitempty"`

	PrimaryImageTag       string            `json:"PrimaryImageTag,omitempty"`
	SeriesPrimaryImageTag string            `json:"SeriesPrimaryImageTag,omitempty"`
	ImageTags             map[string]string `json:"ImageTags,omitempty"`
}

// JellyfinPlayState carries playback state details. PlayMethod is the
// server's play decision ("DirectPlay", "DirectStream", "Transcode").
type JellyfinPlayState struct {
	PositionTicks int64  `json:"PositionTicks"`
	IsPaused      bool   `json:"IsPaused"`
	PlayMethod    string `json:"PlayMethod,omitempty"`
}

// JellyfinTranscodingInfo describes an in-flight transcode.
type JellyfinTranscodingInfo struct {
	Bitrate   int    `json:"Bitrate,omitempty"`
	Container string `json:"Container,omitempty"`
	Width     int    `json:"Width,omitempty"`
	Height    int    `json:"Height,omitempty"`
}

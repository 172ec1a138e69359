// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamwarden/streamwarden/internal/models"
)

// SessionPatch carries the per-observation mutable fields of an active
// session. Everything else on a session row is immutable after insert.
type SessionPatch struct {
	State        models.PlayState
	Bitrate      int
	IsTranscode  bool
	QualityLabel string
	ProgressMs   int64
}

const sessionColumns = `id, server_id, session_key, user_id, external_user_id, username, user_thumb,
	rating_key, media_type, title, series_title, season, episode, year, poster_path,
	ip_address, player, device_id, product, device, platform,
	bitrate, is_transcode, quality_label,
	state, total_duration_ms, progress_ms,
	city, country, latitude, longitude,
	started_at, stopped_at, duration_ms`

// The driver hands UUID columns back as raw bytes; cast them to VARCHAR so
// they scan into the string ids the models carry.
const sessionSelectColumns = `CAST(id AS VARCHAR), server_id, session_key, CAST(user_id AS VARCHAR), external_user_id, username, user_thumb,
	rating_key, media_type, title, series_title, season, episode, year, poster_path,
	ip_address, player, device_id, product, device, platform,
	bitrate, is_transcode, quality_label,
	state, total_duration_ms, progress_ms,
	city, country, latitude, longitude,
	started_at, stopped_at, duration_ms`

// InsertSession stores a freshly observed session and returns its generated
// id. The caller must have resolved UserID and geo fields already.
func (s *Store) InsertSession(ctx context.Context, session *models.Session) (string, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.ServerID, session.SessionKey, session.UserID, session.ExternalUserID, session.Username, session.UserThumb,
		session.RatingKey, string(session.MediaType), session.Title, session.SeriesTitle, session.Season, session.Episode, session.Year, session.PosterPath,
		session.IPAddress, session.Player, session.DeviceID, session.Product, session.Device, session.Platform,
		session.Bitrate, session.IsTranscode, session.QualityLabel,
		string(session.State), session.TotalDurationMs, session.ProgressMs,
		session.City, session.Country, session.Latitude, session.Longitude,
		session.StartedAt, session.StoppedAt, session.DurationMs)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return session.ID, nil
}

// PatchSession updates the mutable fields of the open session identified by
// (serverID, sessionKey). Closed sessions are never patched.
func (s *Store) PatchSession(ctx context.Context, serverID, sessionKey string, patch *SessionPatch) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE sessions
		SET state = ?, bitrate = ?, is_transcode = ?, quality_label = ?, progress_ms = ?
		WHERE server_id = ? AND session_key = ? AND stopped_at IS NULL`,
		string(patch.State), patch.Bitrate, patch.IsTranscode, patch.QualityLabel, patch.ProgressMs,
		serverID, sessionKey)
	if err != nil {
		return fmt.Errorf("patch session %s:%s: %w", serverID, sessionKey, err)
	}
	return nil
}

// CloseSession marks a session stopped. Closing is terminal: a closed session
// is never re-opened.
func (s *Store) CloseSession(ctx context.Context, id string, stoppedAt time.Time, durationMs int64) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE sessions
		SET stopped_at = ?, duration_ms = ?
		WHERE id = ? AND stopped_at IS NULL`,
		stoppedAt, durationMs, id)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// FindRecentByUser returns the user's sessions started within the trailing
// window, most recent first. This is the history feed for rule evaluation.
func (s *Store) FindRecentByUser(ctx context.Context, userID string, sinceHours int) ([]models.Session, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(sinceHours) * time.Hour)
	rows, err := s.conn.QueryContext(ctx, `SELECT `+sessionSelectColumns+` FROM sessions
		WHERE user_id = ? AND started_at >= ?
		ORDER BY started_at DESC`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find recent sessions for user %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()
	return scanSessions(rows)
}

// FindOpenSessions returns every session without a stopped_at, used to seed
// the active-session cache after a restart.
func (s *Store) FindOpenSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+sessionSelectColumns+` FROM sessions
		WHERE stopped_at IS NULL ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("find open sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		var mediaType, state string
		err := rows.Scan(
			&sess.ID, &sess.ServerID, &sess.SessionKey, &sess.UserID, &sess.ExternalUserID, &sess.Username, &sess.UserThumb,
			&sess.RatingKey, &mediaType, &sess.Title, &sess.SeriesTitle, &sess.Season, &sess.Episode, &sess.Year, &sess.PosterPath,
			&sess.IPAddress, &sess.Player, &sess.DeviceID, &sess.Product, &sess.Device, &sess.Platform,
			&sess.Bitrate, &sess.IsTranscode, &sess.QualityLabel,
			&state, &sess.TotalDurationMs, &sess.ProgressMs,
			&sess.City, &sess.Country, &sess.Latitude, &sess.Longitude,
			&sess.StartedAt, &sess.StoppedAt, &sess.DurationMs)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.MediaType = models.MediaType(mediaType)
		sess.State = models.PlayState(state)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamwarden/streamwarden/internal/models"
)

// FindUserByExternalID looks a user up by the (serverID, externalID) pair.
// Returns (nil, nil) when no such user exists.
func (s *Store) FindUserByExternalID(ctx context.Context, serverID, externalID string) (*models.User, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT CAST(id AS VARCHAR), server_id, external_id, username, thumb_url, is_owner, trust_score, created_at, updated_at
		FROM users WHERE server_id = ? AND external_id = ?`, serverID, externalID)

	var u models.User
	err := row.Scan(&u.ID, &u.ServerID, &u.ExternalID, &u.Username, &u.ThumbURL, &u.IsOwner, &u.TrustScore, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s/%s: %w", serverID, externalID, err)
	}
	return &u, nil
}

// InsertUser creates a user with the default trust score and returns the
// stored record.
func (s *Store) InsertUser(ctx context.Context, serverID, externalID, username, thumbURL string) (*models.User, error) {
	now := time.Now().UTC()
	u := &models.User{
		ID:         uuid.NewString(),
		ServerID:   serverID,
		ExternalID: externalID,
		Username:   username,
		ThumbURL:   thumbURL,
		TrustScore: models.DefaultTrustScore,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO users (id, server_id, external_id, username, thumb_url, trust_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ServerID, u.ExternalID, u.Username, u.ThumbURL, u.TrustScore, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user %s/%s: %w", serverID, externalID, err)
	}
	return u, nil
}

// PatchUser updates a user's username and thumbnail.
func (s *Store) PatchUser(ctx context.Context, id, username, thumbURL string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE users
		SET username = ?, thumb_url = ?, updated_at = ?
		WHERE id = ?`, username, thumbURL, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("patch user %s: %w", id, err)
	}
	return nil
}

// DecrementTrustScore applies a violation penalty, clamped at zero.
func (s *Store) DecrementTrustScore(ctx context.Context, userID string, amount int) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE users
		SET trust_score = GREATEST(trust_score - ?, 0), updated_at = ?
		WHERE id = ?`, amount, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("decrement trust score for %s: %w", userID, err)
	}
	return nil
}

// GetTrustScore reads a user's current trust score.
func (s *Store) GetTrustScore(ctx context.Context, userID string) (int, error) {
	var score int
	err := s.conn.QueryRowContext(ctx, `SELECT trust_score FROM users WHERE id = ?`, userID).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("get trust score for %s: %w", userID, err)
	}
	return score, nil
}

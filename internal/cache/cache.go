// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache holds the active-session cache, the single piece of
// cross-tick shared state. The poll orchestrator is its only writer.
//
// Two implementations exist: a BadgerDB-backed cache that survives restarts,
// and an in-memory cache for tests and ephemeral deployments.
package cache

import (
	"context"

	"github.com/streamwarden/streamwarden/internal/models"
)

// Cache is the active-session cache contract. Sessions are keyed by
// (ServerID, SessionKey); the user index is a secondary index from local user
// id to the session row ids currently active for that user.
type Cache interface {
	// GetAll returns every cached active session.
	GetAll(ctx context.Context) ([]models.Session, error)

	// ReplaceAll replaces the cached snapshot wholesale. The replacement
	// is atomic per server: a reader never observes a server's old and
	// new entries mixed.
	ReplaceAll(ctx context.Context, sessions []models.Session) error

	// SetByID inserts or overwrites one session.
	SetByID(ctx context.Context, session *models.Session) error

	// DeleteByID removes one session. Deleting an absent session is not
	// an error.
	DeleteByID(ctx context.Context, serverID, sessionKey string) error

	// AddUserSession records a session row id under the user's index.
	AddUserSession(ctx context.Context, userID, sessionID string) error

	// RemoveUserSession drops a session row id from the user's index.
	RemoveUserSession(ctx context.Context, userID, sessionID string) error

	// GetUserSessions returns the session row ids indexed for the user.
	GetUserSessions(ctx context.Context, userID string) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity maps provider-native accounts to stable local users. The
// local user id is the join key for session history, rules, violations, and
// trust scores.
package identity

import (
	"context"
	"fmt"

	"github.com/streamwarden/streamwarden/internal/logging"
	"github.com/streamwarden/streamwarden/internal/models"
)

// UserStore is the slice of the store the resolver needs.
type UserStore interface {
	FindUserByExternalID(ctx context.Context, serverID, externalID string) (*models.User, error)
	InsertUser(ctx context.Context, serverID, externalID, username, thumbURL string) (*models.User, error)
	PatchUser(ctx context.Context, id, username, thumbURL string) error
}

// Resolver finds or creates local users for provider accounts.
type Resolver struct {
	users UserStore
}

// NewResolver creates an identity resolver.
func NewResolver(users UserStore) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the local user id for (serverID, externalID), creating the
// user on first sight. On subsequent sightings it patches username and
// thumbnail only when they drift, and never overwrites a non-empty stored
// thumbnail with an empty incoming one (providers omit the thumb on some
// session payloads).
func (r *Resolver) Resolve(ctx context.Context, serverID, externalID, username, thumbURL string) (string, error) {
	user, err := r.users.FindUserByExternalID(ctx, serverID, externalID)
	if err != nil {
		return "", fmt.Errorf("identity lookup %s/%s: %w", serverID, externalID, err)
	}

	if user == nil {
		created, err := r.users.InsertUser(ctx, serverID, externalID, username, thumbURL)
		if err != nil {
			return "", fmt.Errorf("identity create %s/%s: %w", serverID, externalID, err)
		}
		logging.Info().
			Str("server_id", serverID).
			Str("external_id", externalID).
			Str("username", username).
			Str("user_id", created.ID).
			Msg("new user sighted")
		return created.ID, nil
	}

	nextThumb := user.ThumbURL
	if thumbURL != "" {
		nextThumb = thumbURL
	}
	if username != user.Username || nextThumb != user.ThumbURL {
		if err := r.users.PatchUser(ctx, user.ID, username, nextThumb); err != nil {
			return "", fmt.Errorf("identity patch %s: %w", user.ID, err)
		}
	}

	return user.ID, nil
}

// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"sync"

	"github.com/streamwarden/streamwarden/internal/models"
)

// MemoryCache is a map-backed Cache. State is lost on restart, so the first
// tick after startup re-reports every active session as started (or the
// orchestrator seeds it from the session store when configured to).
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string]models.Session      // (serverID:sessionKey) -> session
	users    map[string]map[string]struct{} // userID -> set of session row ids
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		sessions: make(map[string]models.Session),
		users:    make(map[string]map[string]struct{}),
	}
}

// GetAll returns every cached session.
func (c *MemoryCache) GetAll(_ context.Context) ([]models.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out, nil
}

// ReplaceAll swaps the snapshot wholesale.
func (c *MemoryCache) ReplaceAll(_ context.Context, sessions []models.Session) error {
	next := make(map[string]models.Session, len(sessions))
	for i := range sessions {
		next[sessions[i].Key()] = sessions[i]
	}
	c.mu.Lock()
	c.sessions = next
	c.mu.Unlock()
	return nil
}

// SetByID inserts or overwrites one session.
func (c *MemoryCache) SetByID(_ context.Context, session *models.Session) error {
	c.mu.Lock()
	c.sessions[session.Key()] = *session
	c.mu.Unlock()
	return nil
}

// DeleteByID removes one session.
func (c *MemoryCache) DeleteByID(_ context.Context, serverID, sessionKey string) error {
	c.mu.Lock()
	delete(c.sessions, serverID+":"+sessionKey)
	c.mu.Unlock()
	return nil
}

// AddUserSession records a session row id under the user's index.
func (c *MemoryCache) AddUserSession(_ context.Context, userID, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.users[userID]
	if !ok {
		set = make(map[string]struct{})
		c.users[userID] = set
	}
	set[sessionID] = struct{}{}
	return nil
}

// RemoveUserSession drops a session row id from the user's index.
func (c *MemoryCache) RemoveUserSession(_ context.Context, userID, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.users[userID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(c.users, userID)
		}
	}
	return nil
}

// GetUserSessions returns the session row ids indexed for the user.
func (c *MemoryCache) GetUserSessions(_ context.Context, userID string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.users[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

// Close is a no-op for the in-memory cache.
func (c *MemoryCache) Close() error {
	return nil
}

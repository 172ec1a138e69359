// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/streamwarden/streamwarden/internal/models"
)

// Both implementations must satisfy the same contract; every test runs
// against both.
func eachCache(t *testing.T, fn func(t *testing.T, c Cache)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		c := NewMemoryCache()
		defer func() { _ = c.Close() }()
		fn(t, c)
	})

	t.Run("badger", func(t *testing.T) {
		c, err := NewBadgerCache("") // in-memory badger
		if err != nil {
			t.Fatalf("open badger: %v", err)
		}
		defer func() { _ = c.Close() }()
		fn(t, c)
	})
}

func cachedSession(id, serverID, sessionKey, userID string) models.Session {
	s := models.Session{
		ID:        id,
		ServerID:  serverID,
		UserID:    userID,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	s.SessionKey = sessionKey
	s.Username = "alice"
	s.State = models.StatePlaying
	return s
}

func keysOf(sessions []models.Session) []string {
	keys := make([]string, 0, len(sessions))
	for i := range sessions {
		keys = append(keys, sessions[i].Key())
	}
	sort.Strings(keys)
	return keys
}

func TestCacheSetGetDelete(t *testing.T) {
	eachCache(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		s := cachedSession("row1", "srv1", "k1", "u1")

		if err := c.SetByID(ctx, &s); err != nil {
			t.Fatalf("set: %v", err)
		}
		all, err := c.GetAll(ctx)
		if err != nil {
			t.Fatalf("get all: %v", err)
		}
		if len(all) != 1 || all[0].ID != "row1" || all[0].Username != "alice" {
			t.Errorf("cached = %+v", all)
		}

		if err := c.DeleteByID(ctx, "srv1", "k1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if all, _ = c.GetAll(ctx); len(all) != 0 {
			t.Errorf("cache not empty after delete: %+v", all)
		}

		// Deleting an absent key is not an error.
		if err := c.DeleteByID(ctx, "srv1", "k1"); err != nil {
			t.Errorf("double delete: %v", err)
		}
	})
}

func TestCacheReplaceAllIsWholesale(t *testing.T) {
	eachCache(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		prev := []models.Session{
			cachedSession("r1", "srv1", "k1", "u1"),
			cachedSession("r2", "srv1", "k2", "u1"),
			cachedSession("r3", "srv2", "k1", "u2"),
		}
		if err := c.ReplaceAll(ctx, prev); err != nil {
			t.Fatalf("seed: %v", err)
		}

		// New snapshot: k1 on srv1 survives, k2 stopped, srv2 drops out
		// entirely, a fresh session appears on srv1.
		next := []models.Session{
			cachedSession("r1", "srv1", "k1", "u1"),
			cachedSession("r4", "srv1", "k9", "u3"),
		}
		if err := c.ReplaceAll(ctx, next); err != nil {
			t.Fatalf("replace: %v", err)
		}

		all, err := c.GetAll(ctx)
		if err != nil {
			t.Fatalf("get all: %v", err)
		}
		got := keysOf(all)
		want := []string{"srv1:k1", "srv1:k9"}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("cache keys = %v, want %v", got, want)
		}
	})
}

func TestCacheReplaceAllEmptySnapshot(t *testing.T) {
	eachCache(t, func(t *testing.T, c Cache) {
		ctx := context.Background()
		if err := c.ReplaceAll(ctx, []models.Session{cachedSession("r1", "srv1", "k1", "u1")}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if err := c.ReplaceAll(ctx, nil); err != nil {
			t.Fatalf("replace with empty: %v", err)
		}
		if all, _ := c.GetAll(ctx); len(all) != 0 {
			t.Errorf("cache not empty: %+v", all)
		}
	})
}

func TestCacheUserIndex(t *testing.T) {
	eachCache(t, func(t *testing.T, c Cache) {
		ctx := context.Background()

		for _, id := range []string{"r1", "r2"} {
			if err := c.AddUserSession(ctx, "u1", id); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
		if err := c.AddUserSession(ctx, "u2", "r3"); err != nil {
			t.Fatalf("add: %v", err)
		}

		ids, err := c.GetUserSessions(ctx, "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		sort.Strings(ids)
		if len(ids) != 2 || ids[0] != "r1" || ids[1] != "r2" {
			t.Errorf("u1 sessions = %v", ids)
		}

		if err := c.RemoveUserSession(ctx, "u1", "r1"); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if ids, _ = c.GetUserSessions(ctx, "u1"); len(ids) != 1 || ids[0] != "r2" {
			t.Errorf("u1 sessions after remove = %v", ids)
		}

		// Other users are untouched.
		if ids, _ = c.GetUserSessions(ctx, "u2"); len(ids) != 1 || ids[0] != "r3" {
			t.Errorf("u2 sessions = %v", ids)
		}

		// Removing an absent pair is not an error.
		if err := c.RemoveUserSession(ctx, "u1", "never-added"); err != nil {
			t.Errorf("remove absent: %v", err)
		}
	})
}

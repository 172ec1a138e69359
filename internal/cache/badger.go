// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/streamwarden/streamwarden/internal/models"
)

const (
	sessionKeyPrefix = "sess:" // sess:<serverID>:<sessionKey> -> Session JSON
	userKeyPrefix    = "user:" // user:<userID>:<sessionID> -> sessionID
)

// BadgerCache persists the active-session snapshot in BadgerDB so that
// lifecycle diffing survives a process restart without a storm of spurious
// "started" events.
type BadgerCache struct {
	db *badger.DB
}

// NewBadgerCache opens (or creates) a Badger cache at path. An empty path
// opens an in-memory database.
func NewBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

func sessionCacheKey(serverID, sessionKey string) []byte {
	return []byte(sessionKeyPrefix + serverID + ":" + sessionKey)
}

// GetAll returns every cached session across all servers.
func (c *BadgerCache) GetAll(_ context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var s models.Session
				if err := json.Unmarshal(val, &s); err != nil {
					return fmt.Errorf("unmarshal cached session: %w", err)
				}
				sessions = append(sessions, s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// ReplaceAll swaps the snapshot. Each server's entries are replaced in their
// own transaction so that one server's stale data can never interleave with
// another's fresh data, and a crash mid-replace leaves whole servers either
// old or new.
func (c *BadgerCache) ReplaceAll(_ context.Context, sessions []models.Session) error {
	byServer := make(map[string][]models.Session)
	for i := range sessions {
		byServer[sessions[i].ServerID] = append(byServer[sessions[i].ServerID], sessions[i])
	}

	// Servers present in the cache but absent from the new snapshot get
	// their entries dropped.
	staleServers, err := c.cachedServerIDs()
	if err != nil {
		return err
	}
	for _, serverID := range staleServers {
		if _, ok := byServer[serverID]; !ok {
			byServer[serverID] = nil
		}
	}

	for serverID, entries := range byServer {
		if err := c.replaceServer(serverID, entries); err != nil {
			return fmt.Errorf("replace server %s cache: %w", serverID, err)
		}
	}
	return nil
}

func (c *BadgerCache) cachedServerIDs() ([]string, error) {
	seen := make(map[string]struct{})
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var s models.Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			})
			if err != nil {
				return err
			}
			seen[s.ServerID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *BadgerCache) replaceServer(serverID string, entries []models.Session) error {
	return c.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(sessionKeyPrefix + serverID + ":")

		// Collect first: deleting while iterating invalidates the iterator.
		var stale [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for i := range entries {
			data, err := json.Marshal(&entries[i])
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			key := sessionCacheKey(entries[i].ServerID, entries[i].SessionKey)
			if err := txn.Set(key, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetByID inserts or overwrites one session.
func (c *BadgerCache) SetByID(_ context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionCacheKey(session.ServerID, session.SessionKey), data)
	})
}

// DeleteByID removes one session.
func (c *BadgerCache) DeleteByID(_ context.Context, serverID, sessionKey string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(sessionCacheKey(serverID, sessionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// AddUserSession records a session row id under the user's index.
func (c *BadgerCache) AddUserSession(_ context.Context, userID, sessionID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		key := []byte(userKeyPrefix + userID + ":" + sessionID)
		return txn.Set(key, []byte(sessionID))
	})
}

// RemoveUserSession drops a session row id from the user's index.
func (c *BadgerCache) RemoveUserSession(_ context.Context, userID, sessionID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(userKeyPrefix + userID + ":" + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// GetUserSessions returns the session row ids indexed for the user.
func (c *BadgerCache) GetUserSessions(_ context.Context, userID string) ([]string, error) {
	var ids []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(userKeyPrefix + userID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Close closes the underlying database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

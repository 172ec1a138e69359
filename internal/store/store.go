// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists sessions, users, rules, violations, and cached
// geolocations in DuckDB. DuckDB runs in-process, so a single file under the
// data directory is the whole database; tests use ":memory:".
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/streamwarden/streamwarden/internal/logging"
)

// Store wraps the DuckDB connection and provides the data access methods the
// polling engine needs.
type Store struct {
	conn *sql.DB
}

// New opens (or creates) the database at path and initializes the schema.
// Pass ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	// Extension auto-install hangs in restricted networks; nothing in this
	// schema needs extensions.
	conn, err := sql.Open("duckdb", path+"?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// DuckDB is single-writer; one connection avoids write-write conflicts
	// between pool members.
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.initSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Info().Str("path", path).Msg("database ready")
	return s, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			server_id TEXT NOT NULL,
			external_id TEXT NOT NULL,
			username TEXT NOT NULL,
			thumb_url TEXT NOT NULL DEFAULT '',
			is_owner BOOLEAN NOT NULL DEFAULT FALSE,
			trust_score INTEGER NOT NULL DEFAULT 100,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(server_id, external_id)
		);`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			server_id TEXT NOT NULL,
			session_key TEXT NOT NULL,
			user_id UUID NOT NULL,
			external_user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			user_thumb TEXT NOT NULL DEFAULT '',

			rating_key TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL,
			title TEXT NOT NULL,
			series_title TEXT NOT NULL DEFAULT '',
			season INTEGER NOT NULL DEFAULT 0,
			episode INTEGER NOT NULL DEFAULT 0,
			year INTEGER NOT NULL DEFAULT 0,
			poster_path TEXT NOT NULL DEFAULT '',

			ip_address TEXT NOT NULL DEFAULT '',
			player TEXT NOT NULL DEFAULT '',
			device_id TEXT NOT NULL DEFAULT '',
			product TEXT NOT NULL DEFAULT '',
			device TEXT NOT NULL DEFAULT '',
			platform TEXT NOT NULL DEFAULT '',

			bitrate INTEGER NOT NULL DEFAULT 0,
			is_transcode BOOLEAN NOT NULL DEFAULT FALSE,
			quality_label TEXT NOT NULL DEFAULT '',

			state TEXT NOT NULL,
			total_duration_ms BIGINT NOT NULL DEFAULT 0,
			progress_ms BIGINT NOT NULL DEFAULT 0,

			city TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			latitude DOUBLE NOT NULL DEFAULT 0,
			longitude DOUBLE NOT NULL DEFAULT 0,

			started_at TIMESTAMP NOT NULL,
			stopped_at TIMESTAMP,
			duration_ms BIGINT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON sessions (user_id, started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_server_key ON sessions (server_id, session_key);`,

		`CREATE TABLE IF NOT EXISTS rules (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			user_id UUID,
			params TEXT NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS violations (
			id UUID PRIMARY KEY,
			rule_id UUID NOT NULL,
			user_id UUID NOT NULL,
			session_id UUID NOT NULL,
			severity TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}',
			acknowledged_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_violations_user ON violations (user_id, created_at);`,

		`CREATE TABLE IF NOT EXISTS geolocations (
			ip_address TEXT PRIMARY KEY,
			city TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			latitude DOUBLE NOT NULL DEFAULT 0,
			longitude DOUBLE NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, query := range queries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

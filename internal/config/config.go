// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the application configuration from
// defaults, an optional YAML file, and environment variables, in that order
// of precedence (env highest).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration.
type Config struct {
	Servers  []ServerConfig `koanf:"servers" validate:"min=1,dive"`
	Poller   PollerConfig   `koanf:"poller"`
	Database DatabaseConfig `koanf:"database"`
	Cache    CacheConfig    `koanf:"cache"`
	GeoIP    GeoIPConfig    `koanf:"geoip"`
	NATS     NATSConfig     `koanf:"nats"`
	HTTP     HTTPConfig     `koanf:"http"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig describes one media server to poll. ID is optional; when empty
// a stable id is derived from the type and name.
type ServerConfig struct {
	ID    string `koanf:"id"`
	Name  string `koanf:"name" validate:"required"`
	Type  string `koanf:"type" validate:"required,oneof=plex jellyfin"`
	URL   string `koanf:"url" validate:"required,url"`
	Token string `koanf:"token" validate:"required"`
}

// DerivedID returns the configured id, or a stable slug derived from the
// server type and name.
func (s *ServerConfig) DerivedID() string {
	if s.ID != "" {
		return s.ID
	}
	slug := strings.ToLower(strings.TrimSpace(s.Name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	return s.Type + "-" + strings.Trim(slug, "-")
}

// PollerConfig tunes the poll loop.
type PollerConfig struct {
	Interval           time.Duration `koanf:"interval" validate:"min=1s"`
	HistoryWindowHours int           `koanf:"history_window_hours" validate:"min=1"`
	SeedFromStore      bool          `koanf:"seed_from_store"`
}

// DatabaseConfig locates the DuckDB database.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// CacheConfig locates the Badger session cache. An empty path selects the
// in-memory cache, which loses the active-session snapshot on restart.
type CacheConfig struct {
	Path string `koanf:"path"`
}

// GeoIPConfig configures the geolocation provider chain. Providers are tried
// in order: local MMDB, MaxMind web service, ip-api.com.
type GeoIPConfig struct {
	MMDBPath          string        `koanf:"mmdb_path"`
	MaxMindAccountID  string        `koanf:"maxmind_account_id"`
	MaxMindLicenseKey string        `koanf:"maxmind_license_key"`
	IPAPIEnabled      bool          `koanf:"ipapi_enabled"`
	CacheTTL          time.Duration `koanf:"cache_ttl" validate:"min=1m"`
}

// NATSConfig configures event publication.
type NATSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	Embedded bool   `koanf:"embedded"`
}

// HTTPConfig configures the admin HTTP server.
type HTTPConfig struct {
	Host              string        `koanf:"host" validate:"required"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before the config file
// and environment variables.
func defaultConfig() *Config {
	return &Config{
		Poller: PollerConfig{
			Interval:           30 * time.Second,
			HistoryWindowHours: 24,
			SeedFromStore:      false,
		},
		Database: DatabaseConfig{
			Path: "/data/streamwarden.duckdb",
		},
		Cache: CacheConfig{
			Path: "/data/cache",
		},
		GeoIP: GeoIPConfig{
			IPAPIEnabled: true,
			CacheTTL:     24 * time.Hour,
		},
		NATS: NATSConfig{
			Enabled:  false,
			URL:      "nats://127.0.0.1:4222",
			Embedded: false,
		},
		HTTP: HTTPConfig{
			Host:              "0.0.0.0",
			Port:              3921,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for structural and semantic errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("config: %s fails %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[string]string, len(c.Servers))
	for i := range c.Servers {
		id := c.Servers[i].DerivedID()
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("config: servers %q and %q derive the same id %q; set explicit ids",
				prev, c.Servers[i].Name, id)
		}
		seen[id] = c.Servers[i].Name
	}

	if c.NATS.Enabled && !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("config: nats.url is required when nats is enabled without the embedded server")
	}
	return nil
}

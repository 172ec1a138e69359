// StreamWarden - Media Server Session Watch and Anomaly Detection
// Copyright 2026 StreamWarden contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/streamwarden/config.yaml",
	"/etc/streamwarden/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "STREAMWARDEN_CONFIG"

// Load builds the configuration from three layers: struct defaults, an
// optional YAML file, and STREAMWARDEN_* environment variables (highest
// priority). Server definitions come from the file; env vars cover the
// scalar settings.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("STREAMWARDEN_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps STREAMWARDEN_* variable names (minus prefix, lowercased)
// to config paths. Unmapped variables are ignored so unrelated environment
// noise cannot leak into the config.
var envMappings = map[string]string{
	"poll_interval":        "poller.interval",
	"history_window_hours": "poller.history_window_hours",
	"seed_from_store":      "poller.seed_from_store",

	"duckdb_path": "database.path",
	"cache_path":  "cache.path",

	"geoip_mmdb_path":           "geoip.mmdb_path",
	"geoip_maxmind_account_id":  "geoip.maxmind_account_id",
	"geoip_maxmind_license_key": "geoip.maxmind_license_key",
	"geoip_ipapi_enabled":       "geoip.ipapi_enabled",
	"geoip_cache_ttl":           "geoip.cache_ttl",

	"nats_enabled":  "nats.enabled",
	"nats_url":      "nats.url",
	"nats_embedded": "nats.embedded",

	"http_host":                "http.host",
	"http_port":                "http.port",
	"http_rate_limit_requests": "http.rate_limit_requests",
	"http_rate_limit_window":   "http.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "STREAMWARDEN_"))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

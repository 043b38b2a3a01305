// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/catalogmirror/config.yaml",
	"/etc/catalogmirror/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values.
func defaultConfig() *Config {
	return &Config{
		Jellyfin: MediaServerConfig{
			Enabled:           false,
			ServerID:          "jellyfin",
			Platform:          PlatformJellyfin,
			RequestsPerSecond: 10,
			RequestTimeout:    30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/catalogmirror.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Sync: SyncConfig{
			PageSize:           500,
			LibraryConcurrency: 2,
			ItemConcurrency:    10,
			PageDelay:          250 * time.Millisecond,
			PageTimeout:        60 * time.Second,
			ItemTimeout:        30 * time.Second,
			RecentLimit:        50,
			Schedule:           "@every 6h",
			RecentSchedule:     "@every 15m",
			LibraryCacheTTL:    10 * time.Minute,
			OnStartup:          true,
		},
		Backfill: BackfillConfig{
			Enabled:              false, // Non-urgent, opt-in only
			Schedule:             "",
			BatchSize:            1000,
			DaysBack:             3650,
			ActivityConcurrency:  1,
			ActivityRequestDelay: 2 * time.Second,
			ActivityPageSize:     200,
			RefreshActivity:      true,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    3858,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config file: optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: mapped through envTransformFunc
func Load() (*Config, error) {
	return load(findConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
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

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot pollute config.
var envMappings = map[string]string{
	"jellyfin_enabled":             "jellyfin.enabled",
	"jellyfin_server_id":           "jellyfin.server_id",
	"jellyfin_platform":            "jellyfin.platform",
	"jellyfin_url":                 "jellyfin.url",
	"jellyfin_api_key":             "jellyfin.api_key",
	"jellyfin_user_id":             "jellyfin.user_id",
	"jellyfin_requests_per_second": "jellyfin.requests_per_second",
	"jellyfin_request_timeout":     "jellyfin.request_timeout",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"sync_page_size":           "sync.page_size",
	"sync_library_concurrency": "sync.library_concurrency",
	"sync_item_concurrency":    "sync.item_concurrency",
	"sync_page_delay":          "sync.page_delay",
	"sync_page_timeout":        "sync.page_timeout",
	"sync_item_timeout":        "sync.item_timeout",
	"sync_recent_limit":        "sync.recent_limit",
	"sync_schedule":            "sync.schedule",
	"sync_recent_schedule":     "sync.recent_schedule",
	"sync_library_cache_ttl":   "sync.library_cache_ttl",
	"sync_on_startup":          "sync.on_startup",

	"backfill_enabled":                "backfill.enabled",
	"backfill_schedule":               "backfill.schedule",
	"backfill_batch_size":             "backfill.batch_size",
	"backfill_days_back":              "backfill.days_back",
	"backfill_activity_concurrency":   "backfill.activity_concurrency",
	"backfill_activity_request_delay": "backfill.activity_request_delay",
	"backfill_activity_page_size":     "backfill.activity_page_size",
	"backfill_refresh_activity":       "backfill.refresh_activity",

	"http_enabled":      "server.enabled",
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"http_cors_origins": "server.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - JELLYFIN_URL -> jellyfin.url
//   - SYNC_ITEM_CONCURRENCY -> sync.item_concurrency
//   - DUCKDB_PATH -> database.path
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

// Package config loads Catalogmirror configuration from defaults, an optional
// YAML file and environment variables (in that order of precedence, lowest
// first) using Koanf v2.
//
// Servers can be declared as a list in the config file:
//
//	servers:
//	  - server_id: jf-main
//	    platform: jellyfin
//	    url: http://jellyfin:8096
//	    api_key: ${secret}
//
// or, for the common single-server deployment, through JELLYFIN_URL,
// JELLYFIN_API_KEY and JELLYFIN_SERVER_ID.
package config

import "time"

// Platforms supported by the REST client. Emby shares the Jellyfin API surface.
const (
	PlatformJellyfin = "jellyfin"
	PlatformEmby     = "emby"
)

// Config holds all application configuration.
type Config struct {
	Servers  []MediaServerConfig `koanf:"servers"`
	Jellyfin MediaServerConfig   `koanf:"jellyfin"` // Single-server shorthand, used when Enabled
	Database DatabaseConfig      `koanf:"database"`
	Sync     SyncConfig          `koanf:"sync"`
	Backfill BackfillConfig      `koanf:"backfill"`
	Server   ServerConfig        `koanf:"server"`
	Logging  LoggingConfig       `koanf:"logging"`
}

// MediaServerConfig describes one upstream Jellyfin or Emby server.
type MediaServerConfig struct {
	Enabled           bool          `koanf:"enabled"` // Only consulted for the jellyfin shorthand
	ServerID          string        `koanf:"server_id" validate:"required,serverid"`
	Platform          string        `koanf:"platform" validate:"oneof=jellyfin emby"`
	URL               string        `koanf:"url" validate:"required,url"`
	APIKey            string        `koanf:"api_key" validate:"required"`
	UserID            string        `koanf:"user_id"`                                     // Optional: user-scoped item queries
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0,lte=100"` // 0 = unlimited
	RequestTimeout    time.Duration `koanf:"request_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"` // 0 = runtime.NumCPU()
}

// SyncConfig holds catalog mirror settings.
type SyncConfig struct {
	PageSize           int           `koanf:"page_size" validate:"min=1,max=10000"`
	LibraryConcurrency int           `koanf:"library_concurrency" validate:"min=1,max=16"`
	ItemConcurrency    int           `koanf:"item_concurrency" validate:"min=1,max=64"`
	PageDelay          time.Duration `koanf:"page_delay"`
	PageTimeout        time.Duration `koanf:"page_timeout"`
	ItemTimeout        time.Duration `koanf:"item_timeout"`
	RecentLimit        int           `koanf:"recent_limit" validate:"min=1,max=1000"`
	Schedule           string        `koanf:"schedule" validate:"required,cronspec"`
	RecentSchedule     string        `koanf:"recent_schedule" validate:"omitempty,cronspec"`
	LibraryCacheTTL    time.Duration `koanf:"library_cache_ttl"`
	OnStartup          bool          `koanf:"on_startup"` // Run a full pass when the service starts
}

// BackfillConfig holds historical session reconstruction settings.
// The activity refresh uses deliberately lower concurrency and a longer
// inter-request delay than the catalog sync.
type BackfillConfig struct {
	Enabled              bool          `koanf:"enabled"`
	Schedule             string        `koanf:"schedule" validate:"omitempty,cronspec"`
	BatchSize            int           `koanf:"batch_size" validate:"min=1,max=100000"`
	DaysBack             int           `koanf:"days_back" validate:"min=1"`
	ActivityConcurrency  int           `koanf:"activity_concurrency" validate:"min=1,max=8"`
	ActivityRequestDelay time.Duration `koanf:"activity_request_delay"`
	ActivityPageSize     int           `koanf:"activity_page_size" validate:"min=1,max=1000"`
	RefreshActivity      bool          `koanf:"refresh_activity"` // Refresh the activity log before reconstructing
}

// ServerConfig holds the ops HTTP endpoint settings.
type ServerConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
	// CORSOrigins enables CORS on the ops endpoint when non-empty.
	CORSOrigins []string `koanf:"cors_origins" validate:"omitempty,dive,required"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// MediaServers returns every configured server: the servers list followed by
// the single-server shorthand when it is enabled.
func (c *Config) MediaServers() []MediaServerConfig {
	servers := make([]MediaServerConfig, 0, len(c.Servers)+1)
	for i := range c.Servers {
		s := c.Servers[i]
		if s.Platform == "" {
			s.Platform = PlatformJellyfin
		}
		servers = append(servers, s)
	}
	if c.Jellyfin.Enabled {
		s := c.Jellyfin
		if s.Platform == "" {
			s.Platform = PlatformJellyfin
		}
		servers = append(servers, s)
	}
	return servers
}

// FindServer returns the configured server with the given ID.
func (c *Config) FindServer(serverID string) (MediaServerConfig, bool) {
	for _, s := range c.MediaServers() {
		if s.ServerID == serverID {
			return s, true
		}
	}
	return MediaServerConfig{}, false
}

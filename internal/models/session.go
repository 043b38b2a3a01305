// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// SessionSource marks where a session row came from.
type SessionSource string

const (
	// SessionSourceNative rows are written by live playback telemetry.
	SessionSourceNative SessionSource = "native"

	// SessionSourceHistorical rows are reconstructed from the activity log.
	SessionSourceHistorical SessionSource = "historical_import"
)

// Session is one viewing record. ItemID is a weak reference and may dangle
// after the item is removed upstream.
type Session struct {
	ID              string          `json:"id"`
	ServerID        string          `json:"server_id"`
	UserID          string          `json:"user_id"`
	UserName        string          `json:"user_name,omitempty"`
	ItemID          string          `json:"item_id"`
	ItemName        string          `json:"item_name,omitempty"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	PlayDuration    int64           `json:"play_duration"` // seconds
	PercentComplete float64         `json:"percent_complete"`
	Completed       bool            `json:"completed"`
	Source          SessionSource   `json:"source"`
	Provenance      json.RawMessage `json:"provenance,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// HistoricalProvenance is stored in Session.Provenance for reconstructed rows.
type HistoricalProvenance struct {
	Source     string   `json:"source"`
	EventIDs   []int64  `json:"event_ids"`
	EventNames []string `json:"event_names"`
	HourBucket int64    `json:"hour_bucket"`
}

// User is a mirrored account on one server.
type User struct {
	ID               string     `json:"id"`
	ServerID         string     `json:"server_id"`
	Name             string     `json:"name"`
	IsAdmin          bool       `json:"is_admin"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RemoteUser is a user as returned by /Users.
type RemoteUser struct {
	ID               string `json:"Id"`
	Name             string `json:"Name"`
	LastActivityDate string `json:"LastActivityDate,omitempty"`
	Policy           struct {
		IsAdministrator bool `json:"IsAdministrator"`
	} `json:"Policy"`
}

// ActivityEvent is one mirrored activity-log line. Name is free text
// ("alice has finished playing Heat on Living Room TV").
type ActivityEvent struct {
	ID            int64     `json:"id"`
	ServerID      string    `json:"server_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type,omitempty"`
	ShortOverview string    `json:"short_overview,omitempty"`
	Severity      string    `json:"severity,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	ItemID        string    `json:"item_id,omitempty"`
	Date          time.Time `json:"date"`
}

// RemoteActivityEntry is one entry from /System/ActivityLog/Entries.
type RemoteActivityEntry struct {
	ID            int64  `json:"Id"`
	Name          string `json:"Name"`
	ShortOverview string `json:"ShortOverview,omitempty"`
	Type          string `json:"Type"`
	ItemID        string `json:"ItemId,omitempty"`
	Date          string `json:"Date"`
	UserID        string `json:"UserId,omitempty"`
	Severity      string `json:"Severity,omitempty"`
}

// ActivityPage is one page of the upstream activity log.
type ActivityPage struct {
	Items      []RemoteActivityEntry `json:"Items"`
	TotalCount int                   `json:"TotalRecordCount"`
}

// SessionCandidate is a group of activity events believed to describe one
// viewing session: same user, same item, same wall-clock hour.
type SessionCandidate struct {
	ServerID   string
	UserID     string
	ItemID     string
	HourBucket int64 // Unix seconds / 3600
	Events     []ActivityEvent
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package models

import "time"

// SyncStatus is the overall outcome of a run.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusError   SyncStatus = "error"
)

// SyncMode distinguishes a full paginated pass from the recently-added refresh.
type SyncMode string

const (
	SyncModeFull   SyncMode = "full"
	SyncModeRecent SyncMode = "recent"
)

// SyncCounts aggregates per-item outcomes of a catalog sync.
type SyncCounts struct {
	LibrariesProcessed int `json:"libraries_processed"`
	ItemsProcessed     int `json:"items_processed"`
	ItemsInserted      int `json:"items_inserted"`
	ItemsUpdated       int `json:"items_updated"`
	ItemsUnchanged     int `json:"items_unchanged"`
	ItemsMigrated      int `json:"items_migrated"`
	ItemErrors         int `json:"item_errors"`
}

// Add accumulates other into c.
func (c *SyncCounts) Add(other SyncCounts) {
	c.LibrariesProcessed += other.LibrariesProcessed
	c.ItemsProcessed += other.ItemsProcessed
	c.ItemsInserted += other.ItemsInserted
	c.ItemsUpdated += other.ItemsUpdated
	c.ItemsUnchanged += other.ItemsUnchanged
	c.ItemsMigrated += other.ItemsMigrated
	c.ItemErrors += other.ItemErrors
}

// SyncResult is the structured result of one catalog sync run.
type SyncResult struct {
	ID         string     `json:"id"`
	ServerID   string     `json:"server_id"`
	Mode       SyncMode   `json:"mode"`
	Status     SyncStatus `json:"status"`
	Counts     SyncCounts `json:"counts"`
	Errors     []string   `json:"errors"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Duration returns the wall-clock run time.
func (r *SyncResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HistoricalSyncResult is the end-of-job record of a historical backfill.
// SessionsSkipped counts duplicates only; candidates dropped for missing
// item or user references are reported in SessionsMissingRef.
type HistoricalSyncResult struct {
	ID                  string     `json:"id"`
	ServerID            string     `json:"server_id"`
	RangeFrom           time.Time  `json:"range_from"`
	RangeTo             time.Time  `json:"range_to"`
	ActivitiesSynced    int        `json:"activities_synced"`
	ActivitiesProcessed int        `json:"activities_processed"`
	SessionsCreated     int        `json:"sessions_created"`
	SessionsSkipped     int        `json:"sessions_skipped"`
	SessionsMissingRef  int        `json:"sessions_missing_ref"`
	Status              SyncStatus `json:"status"`
	Errors              []string   `json:"errors"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          time.Time  `json:"finished_at"`
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/catalogmirror/internal/models"
)

func errorsJSON(errs []string) (any, error) {
	if len(errs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// InsertSyncRun persists the result of one catalog sync pass.
func (db *DB) InsertSyncRun(ctx context.Context, r *models.SyncResult) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("insert", "sync_runs", time.Now(), &err)

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	errs, err := errorsJSON(r.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode sync errors: %w", err)
	}
	c := r.Counts
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO sync_runs (id, server_id, mode, status, libraries_processed, items_processed,
			items_inserted, items_updated, items_unchanged, items_migrated, item_errors,
			errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ServerID, string(r.Mode), string(r.Status), c.LibrariesProcessed, c.ItemsProcessed,
		c.ItemsInserted, c.ItemsUpdated, c.ItemsUnchanged, c.ItemsMigrated, c.ItemErrors,
		errs, r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent sync runs of a server, newest first.
func (db *DB) ListSyncRuns(ctx context.Context, serverID string, limit int) (runs []models.SyncResult, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "sync_runs", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, server_id, mode, status, libraries_processed, items_processed,
			items_inserted, items_updated, items_unchanged, items_migrated, item_errors,
			errors, started_at, finished_at
		FROM sync_runs WHERE server_id = ?
		ORDER BY started_at DESC, id
		LIMIT ?`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer closeWithLog(rows, "sync run rows")

	runs = make([]models.SyncResult, 0)
	for rows.Next() {
		var (
			r            models.SyncResult
			mode, status string
			errs         sql.NullString
		)
		c := &r.Counts
		if err = rows.Scan(&r.ID, &r.ServerID, &mode, &status, &c.LibrariesProcessed, &c.ItemsProcessed,
			&c.ItemsInserted, &c.ItemsUpdated, &c.ItemsUnchanged, &c.ItemsMigrated, &c.ItemErrors,
			&errs, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.Mode = models.SyncMode(mode)
		r.Status = models.SyncStatus(status)
		if r.Errors, err = decodeStrings(errs); err != nil {
			return nil, fmt.Errorf("failed to decode sync run errors: %w", err)
		}
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

// InsertHistoricalSyncResult persists the end-of-job record of a backfill.
func (db *DB) InsertHistoricalSyncResult(ctx context.Context, r *models.HistoricalSyncResult) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("insert", "historical_sync_results", time.Now(), &err)

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	errs, err := errorsJSON(r.Errors)
	if err != nil {
		return fmt.Errorf("failed to encode backfill errors: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO historical_sync_results (id, server_id, range_from, range_to,
			activities_synced, activities_processed, sessions_created, sessions_skipped,
			sessions_missing_ref, status, errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ServerID, r.RangeFrom.UTC(), r.RangeTo.UTC(),
		r.ActivitiesSynced, r.ActivitiesProcessed, r.SessionsCreated, r.SessionsSkipped,
		r.SessionsMissingRef, string(r.Status), errs, r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert historical sync result: %w", err)
	}
	return nil
}

// ListHistoricalSyncResults returns the most recent backfill records of a
// server, newest first.
func (db *DB) ListHistoricalSyncResults(ctx context.Context, serverID string, limit int) (results []models.HistoricalSyncResult, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "historical_sync_results", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, server_id, range_from, range_to, activities_synced, activities_processed,
			sessions_created, sessions_skipped, sessions_missing_ref, status, errors,
			started_at, finished_at
		FROM historical_sync_results WHERE server_id = ?
		ORDER BY started_at DESC, id
		LIMIT ?`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list historical sync results: %w", err)
	}
	defer closeWithLog(rows, "historical result rows")

	results = make([]models.HistoricalSyncResult, 0)
	for rows.Next() {
		var (
			r      models.HistoricalSyncResult
			status string
			errs   sql.NullString
		)
		if err = rows.Scan(&r.ID, &r.ServerID, &r.RangeFrom, &r.RangeTo, &r.ActivitiesSynced,
			&r.ActivitiesProcessed, &r.SessionsCreated, &r.SessionsSkipped, &r.SessionsMissingRef,
			&status, &errs, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan historical sync result: %w", err)
		}
		r.Status = models.SyncStatus(status)
		if r.Errors, err = decodeStrings(errs); err != nil {
			return nil, fmt.Errorf("failed to decode historical result errors: %w", err)
		}
		r.RangeFrom = r.RangeFrom.UTC()
		r.RangeTo = r.RangeTo.UTC()
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		results = append(results, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating historical sync results: %w", err)
	}
	return results, nil
}

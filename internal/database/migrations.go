// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
migrations.go - Versioned schema migrations

Every schema change is an append-only entry in getMigrations(). Applied
versions are recorded in schema_migrations so each runs exactly once.

Indexing note: DuckDB rewrites an UPDATE that touches an indexed column as
DELETE + INSERT, which collides with the primary key inside the same
transaction. sessions.item_id is rewritten by identity migrations and most
catalog_items columns by in-place updates, so neither table carries a
secondary index. activity_log is insert-only and is indexed by date.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/catalogmirror/internal/logging"
)

// Migration represents a versioned database migration.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         []string
	AppliedAt   time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name VARCHAR NOT NULL,
	description VARCHAR,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// getMigrations returns all versioned migrations in order.
// Migrations are append-only: never modify or remove an entry once released.
func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Name:        "catalog_schema",
			Description: "Libraries, catalog items and users mirrored from media servers",
			SQL: []string{
				`CREATE TABLE IF NOT EXISTS libraries (
					server_id VARCHAR NOT NULL,
					id VARCHAR NOT NULL,
					name VARCHAR NOT NULL,
					collection_type VARCHAR,
					removed_at TIMESTAMP,
					updated_at TIMESTAMP NOT NULL,
					PRIMARY KEY (server_id, id)
				)`,
				`CREATE TABLE IF NOT EXISTS catalog_items (
					server_id VARCHAR NOT NULL,
					id VARCHAR NOT NULL,
					library_id VARCHAR NOT NULL,
					name VARCHAR,
					original_title VARCHAR,
					sort_name VARCHAR,
					type VARCHAR NOT NULL,
					media_type VARCHAR,
					path VARCHAR,
					container VARCHAR,
					version_tag VARCHAR,
					provider_ids VARCHAR,
					series_name VARCHAR,
					series_id VARCHAR,
					season_id VARCHAR,
					season_name VARCHAR,
					parent_id VARCHAR,
					index_number INTEGER,
					parent_index_number INTEGER,
					run_time_ticks BIGINT,
					production_year INTEGER,
					premiere_date TIMESTAMP,
					end_date TIMESTAMP,
					date_created TIMESTAMP,
					community_rating DOUBLE,
					critic_rating DOUBLE,
					official_rating VARCHAR,
					overview VARCHAR,
					taglines VARCHAR,
					genres VARCHAR,
					studios VARCHAR,
					tags VARCHAR,
					status VARCHAR,
					is_folder BOOLEAN NOT NULL DEFAULT false,
					child_count INTEGER,
					width INTEGER,
					height INTEGER,
					video_type VARCHAR,
					location_type VARCHAR,
					has_subtitles BOOLEAN NOT NULL DEFAULT false,
					primary_image_tag VARCHAR,
					thumb_image_tag VARCHAR,
					logo_image_tag VARCHAR,
					banner_image_tag VARCHAR,
					art_image_tag VARCHAR,
					primary_image_aspect_ratio DOUBLE,
					primary_image_hash VARCHAR,
					backdrop_image_tags VARCHAR,
					raw_snapshot VARCHAR,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					PRIMARY KEY (server_id, id)
				)`,
				`CREATE TABLE IF NOT EXISTS users (
					server_id VARCHAR NOT NULL,
					id VARCHAR NOT NULL,
					name VARCHAR NOT NULL,
					is_admin BOOLEAN NOT NULL DEFAULT false,
					last_activity_date TIMESTAMP,
					updated_at TIMESTAMP NOT NULL,
					PRIMARY KEY (server_id, id)
				)`,
			},
		},
		{
			Version:     2,
			Name:        "activity_and_sessions",
			Description: "Mirrored activity log and viewing sessions",
			SQL: []string{
				`CREATE TABLE IF NOT EXISTS activity_log (
					server_id VARCHAR NOT NULL,
					id BIGINT NOT NULL,
					name VARCHAR NOT NULL,
					type VARCHAR,
					short_overview VARCHAR,
					severity VARCHAR,
					user_id VARCHAR,
					item_id VARCHAR,
					date TIMESTAMP NOT NULL,
					PRIMARY KEY (server_id, id)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_activity_log_date ON activity_log (server_id, date)`,
				`CREATE TABLE IF NOT EXISTS sessions (
					id VARCHAR PRIMARY KEY,
					server_id VARCHAR NOT NULL,
					user_id VARCHAR NOT NULL,
					user_name VARCHAR,
					item_id VARCHAR NOT NULL,
					item_name VARCHAR,
					start_time TIMESTAMP NOT NULL,
					end_time TIMESTAMP NOT NULL,
					play_duration BIGINT NOT NULL,
					percent_complete DOUBLE NOT NULL,
					completed BOOLEAN NOT NULL,
					source VARCHAR NOT NULL,
					provenance VARCHAR,
					created_at TIMESTAMP NOT NULL
				)`,
			},
		},
		{
			Version:     3,
			Name:        "run_records",
			Description: "Catalog sync runs and historical backfill results",
			SQL: []string{
				`CREATE TABLE IF NOT EXISTS sync_runs (
					id VARCHAR PRIMARY KEY,
					server_id VARCHAR NOT NULL,
					mode VARCHAR NOT NULL,
					status VARCHAR NOT NULL,
					libraries_processed INTEGER NOT NULL,
					items_processed INTEGER NOT NULL,
					items_inserted INTEGER NOT NULL,
					items_updated INTEGER NOT NULL,
					items_unchanged INTEGER NOT NULL,
					items_migrated INTEGER NOT NULL,
					item_errors INTEGER NOT NULL,
					errors VARCHAR,
					started_at TIMESTAMP NOT NULL,
					finished_at TIMESTAMP NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS historical_sync_results (
					id VARCHAR PRIMARY KEY,
					server_id VARCHAR NOT NULL,
					range_from TIMESTAMP NOT NULL,
					range_to TIMESTAMP NOT NULL,
					activities_synced INTEGER NOT NULL,
					activities_processed INTEGER NOT NULL,
					sessions_created INTEGER NOT NULL,
					sessions_skipped INTEGER NOT NULL,
					sessions_missing_ref INTEGER NOT NULL,
					status VARCHAR NOT NULL,
					errors VARCHAR,
					started_at TIMESTAMP NOT NULL,
					finished_at TIMESTAMP NOT NULL
				)`,
			},
		},
	}
}

func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]Migration, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version, name, description, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer closeWithLog(rows, "migration rows")

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[m.Version] = m
	}
	return applied, rows.Err()
}

// runVersionedMigrations executes migrations that have not been applied yet.
// Each migration and its bookkeeping row commit together.
func (db *DB) runVersionedMigrations() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	newMigrations := 0
	for _, m := range getMigrations() {
		if _, exists := applied[m.Version]; exists {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return err
		}
		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Int("count", newMigrations).Msg("Applied database migrations")
	}
	return nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration v%d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.SQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Description); err != nil {
		return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
	}
	return nil
}

// GetCurrentSchemaVersion returns the highest applied migration version.
func (db *DB) GetCurrentSchemaVersion(ctx context.Context) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var version int
	err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

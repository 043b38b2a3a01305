// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

// UpsertLibraries records the libraries currently reported by a server.
// A library that reappears after being flagged removed is un-flagged.
func (db *DB) UpsertLibraries(ctx context.Context, serverID string, libs []models.RemoteLibrary) (err error) {
	if len(libs) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("upsert", "libraries", time.Now(), &err)

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(libs))
	for _, lib := range libs {
		if _, dup := seen[lib.ID]; dup {
			continue
		}
		seen[lib.ID] = struct{}{}

		_, err = db.conn.ExecContext(ctx, `
			INSERT INTO libraries (server_id, id, name, collection_type, removed_at, updated_at)
			VALUES (?, ?, ?, ?, NULL, ?)
			ON CONFLICT (server_id, id) DO UPDATE SET
				name = EXCLUDED.name,
				collection_type = EXCLUDED.collection_type,
				removed_at = NULL,
				updated_at = EXCLUDED.updated_at`,
			serverID, lib.ID, lib.Name, nullString(lib.CollectionType), now)
		if err != nil {
			return fmt.Errorf("failed to upsert library %s: %w", lib.ID, err)
		}
	}
	return nil
}

// MarkLibrariesRemoved flags every stored, not yet flagged library of serverID
// whose id is not in present. Rows are kept so their statistics survive.
// Returns the libraries that were newly flagged.
func (db *DB) MarkLibrariesRemoved(ctx context.Context, serverID string, present []string) (removed []models.Library, err error) {
	stored, err := db.ListLibraries(ctx, serverID, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("update", "libraries", time.Now(), &err)

	keep := make(map[string]struct{}, len(present))
	for _, id := range present {
		keep[id] = struct{}{}
	}

	now := time.Now().UTC()
	for i := range stored {
		lib := stored[i]
		if _, ok := keep[lib.ID]; ok {
			continue
		}
		if _, err = db.conn.ExecContext(ctx,
			`UPDATE libraries SET removed_at = ?, updated_at = ? WHERE server_id = ? AND id = ?`,
			now, now, serverID, lib.ID); err != nil {
			return removed, fmt.Errorf("failed to flag library %s removed: %w", lib.ID, err)
		}
		lib.RemovedAt = &now
		lib.UpdatedAt = now
		removed = append(removed, lib)
	}
	return removed, nil
}

// ListLibraries returns the stored libraries of a server ordered by name.
func (db *DB) ListLibraries(ctx context.Context, serverID string, includeRemoved bool) (libs []models.Library, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "libraries", time.Now(), &err)

	query := `SELECT server_id, id, name, collection_type, removed_at, updated_at
		FROM libraries WHERE server_id = ?`
	if !includeRemoved {
		query += ` AND removed_at IS NULL`
	}
	query += ` ORDER BY name, id`

	rows, err := db.conn.QueryContext(ctx, query, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer closeWithLog(rows, "library rows")

	libs = make([]models.Library, 0)
	for rows.Next() {
		lib, scanErr := scanLibrary(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan library: %w", scanErr)
		}
		libs = append(libs, *lib)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating libraries: %w", err)
	}
	return libs, nil
}

// FindLibrary returns the stored library with the given id on any server.
// Library ids are server-assigned GUIDs, so a cross-server collision is
// not expected; the first row by server id wins if one occurs.
func (db *DB) FindLibrary(ctx context.Context, libraryID string) (lib *models.Library, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "libraries", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx, `
		SELECT server_id, id, name, collection_type, removed_at, updated_at
		FROM libraries WHERE id = ? ORDER BY server_id LIMIT 1`, libraryID)
	lib, err = scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLibraryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find library %s: %w", libraryID, err)
	}
	return lib, nil
}

func scanLibrary(row rowScanner) (*models.Library, error) {
	var (
		lib            models.Library
		collectionType sql.NullString
		removedAt      sql.NullTime
	)
	if err := row.Scan(&lib.ServerID, &lib.ID, &lib.Name, &collectionType, &removedAt, &lib.UpdatedAt); err != nil {
		return nil, err
	}
	lib.CollectionType = collectionType.String
	lib.RemovedAt = timePtr(removedAt)
	lib.UpdatedAt = lib.UpdatedAt.UTC()
	return &lib, nil
}

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

// UpsertUsers inserts or refreshes mirrored user accounts.
func (db *DB) UpsertUsers(ctx context.Context, users []models.User) (err error) {
	if len(users) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("upsert", "users", time.Now(), &err)

	now := time.Now().UTC()
	for i := range users {
		u := &users[i]
		_, err = db.conn.ExecContext(ctx, `
			INSERT INTO users (server_id, id, name, is_admin, last_activity_date, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (server_id, id) DO UPDATE SET
				name = EXCLUDED.name,
				is_admin = EXCLUDED.is_admin,
				last_activity_date = EXCLUDED.last_activity_date,
				updated_at = EXCLUDED.updated_at`,
			u.ServerID, u.ID, u.Name, u.IsAdmin, nullTime(u.LastActivityDate), now)
		if err != nil {
			return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
		}
	}
	return nil
}

// GetUser returns one mirrored user, or ErrUserNotFound.
func (db *DB) GetUser(ctx context.Context, serverID, id string) (user *models.User, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "users", time.Now(), &err)

	var (
		u            models.User
		lastActivity sql.NullTime
	)
	err = db.conn.QueryRowContext(ctx, `
		SELECT server_id, id, name, is_admin, last_activity_date, updated_at
		FROM users WHERE server_id = ? AND id = ?`, serverID, id).
		Scan(&u.ServerID, &u.ID, &u.Name, &u.IsAdmin, &lastActivity, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	u.LastActivityDate = timePtr(lastActivity)
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

// CountUsers returns the number of mirrored users for a server.
func (db *DB) CountUsers(ctx context.Context, serverID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE server_id = ?`, serverID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

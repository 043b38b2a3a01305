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

	"github.com/google/uuid"

	"github.com/tomtom215/catalogmirror/internal/models"
)

// ErrSessionNotFound is returned by GetSession.
var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, server_id, user_id, user_name, item_id, item_name, start_time, end_time,
	play_duration, percent_complete, completed, source, provenance, created_at`

// InsertSession stores a new session row. An empty ID is filled with a UUID.
func (db *DB) InsertSession(ctx context.Context, s *models.Session) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("insert", "sessions", time.Now(), &err)

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	var provenance any
	if len(s.Provenance) > 0 {
		provenance = string(s.Provenance)
	}

	_, err = db.conn.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.ServerID, s.UserID, nullString(s.UserName), s.ItemID, nullString(s.ItemName),
		s.StartTime.UTC(), s.EndTime.UTC(), s.PlayDuration, s.PercentComplete, s.Completed,
		string(s.Source), provenance, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession returns a session by id, or ErrSessionNotFound.
func (db *DB) GetSession(ctx context.Context, id string) (s *models.Session, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "sessions", time.Now(), &err)

	s, err = scanSession(db.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return s, nil
}

// FindSessionNear returns the earliest session of (userID, itemID) whose start
// time lies within [at-window, at+window], or nil when there is none.
// Both native and historical rows are considered.
func (db *DB) FindSessionNear(ctx context.Context, serverID, userID, itemID string, at time.Time, window time.Duration) (s *models.Session, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "sessions", time.Now(), &err)

	at = at.UTC()
	s, err = scanSession(db.conn.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE server_id = ? AND user_id = ? AND item_id = ?
		  AND start_time BETWEEN ? AND ?
		ORDER BY start_time
		LIMIT 1`,
		serverID, userID, itemID, at.Add(-window), at.Add(window)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up nearby session: %w", err)
	}
	return s, nil
}

// ListSessionsByItem returns all sessions referencing itemID, oldest first.
func (db *DB) ListSessionsByItem(ctx context.Context, serverID, itemID string) (sessions []*models.Session, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "sessions", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE server_id = ? AND item_id = ?
		ORDER BY start_time, id`, serverID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer closeWithLog(rows, "session rows")

	sessions = make([]*models.Session, 0)
	for rows.Next() {
		s, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan session: %w", scanErr)
		}
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// CountSessions returns the number of sessions of a server with the given
// source; an empty source counts every row.
func (db *DB) CountSessions(ctx context.Context, serverID string, source models.SessionSource) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT COUNT(*) FROM sessions WHERE server_id = ?`
	args := []any{serverID}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, string(source))
	}
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		s                  models.Session
		userName, itemName sql.NullString
		source             string
		provenance         sql.NullString
	)
	if err := row.Scan(&s.ID, &s.ServerID, &s.UserID, &userName, &s.ItemID, &itemName,
		&s.StartTime, &s.EndTime, &s.PlayDuration, &s.PercentComplete, &s.Completed,
		&source, &provenance, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.UserName = userName.String
	s.ItemName = itemName.String
	s.Source = models.SessionSource(source)
	if provenance.Valid {
		s.Provenance = []byte(provenance.String)
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

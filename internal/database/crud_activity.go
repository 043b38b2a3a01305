// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

// InsertActivityEvents mirrors activity-log rows. Rows already stored are
// left untouched, so re-fetching an overlapping range is harmless.
// Returns the number of rows actually inserted.
func (db *DB) InsertActivityEvents(ctx context.Context, events []models.ActivityEvent) (inserted int, err error) {
	if len(events) == 0 {
		return 0, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("insert", "activity_log", time.Now(), &err)

	events = dedupeEvents(events)

	const cols = 9
	rowMarks := placeholders(cols)
	for start := 0; start < len(events); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(events))
		chunk := events[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*cols)
		for i := range chunk {
			e := &chunk[i]
			values = append(values, rowMarks)
			args = append(args, e.ServerID, e.ID, e.Name, nullString(e.Type), nullString(e.ShortOverview),
				nullString(e.Severity), nullString(e.UserID), nullString(e.ItemID), e.Date.UTC())
		}

		res, execErr := db.conn.ExecContext(ctx, `
			INSERT INTO activity_log (server_id, id, name, type, short_overview, severity, user_id, item_id, date)
			VALUES `+strings.Join(values, ", ")+`
			ON CONFLICT (server_id, id) DO NOTHING`, args...)
		if execErr != nil {
			err = execErr
			return inserted, fmt.Errorf("failed to insert activity events: %w", err)
		}
		if n, raErr := res.RowsAffected(); raErr == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

func dedupeEvents(events []models.ActivityEvent) []models.ActivityEvent {
	type key struct {
		server string
		id     int64
	}
	seen := make(map[key]struct{}, len(events))
	out := make([]models.ActivityEvent, 0, len(events))
	for i := range events {
		k := key{events[i].ServerID, events[i].ID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, events[i])
	}
	return out
}

// ListActivityRange returns up to limit stored activity rows of serverID with
// from <= date < to, ordered by (date, id), skipping the first offset rows.
func (db *DB) ListActivityRange(ctx context.Context, serverID string, from, to time.Time, offset, limit int) (events []models.ActivityEvent, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "activity_log", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT server_id, id, name, type, short_overview, severity, user_id, item_id, date
		FROM activity_log
		WHERE server_id = ? AND date >= ? AND date < ?
		ORDER BY date, id
		LIMIT ? OFFSET ?`,
		serverID, from.UTC(), to.UTC(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity range: %w", err)
	}
	defer closeWithLog(rows, "activity rows")

	events = make([]models.ActivityEvent, 0, limit)
	for rows.Next() {
		var (
			e                                     models.ActivityEvent
			typ, overview, severity, userID, item sql.NullString
		)
		if err = rows.Scan(&e.ServerID, &e.ID, &e.Name, &typ, &overview, &severity, &userID, &item, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		e.Type = typ.String
		e.ShortOverview = overview.String
		e.Severity = severity.String
		e.UserID = userID.String
		e.ItemID = item.String
		e.Date = e.Date.UTC()
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return events, nil
}

// LatestActivityDate returns the newest mirrored activity timestamp for a
// server, or nil when nothing has been mirrored yet.
func (db *DB) LatestActivityDate(ctx context.Context, serverID string) (*time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var latest sql.NullTime
	if err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(date) FROM activity_log WHERE server_id = ?`, serverID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to query latest activity date: %w", err)
	}
	return timePtr(latest), nil
}

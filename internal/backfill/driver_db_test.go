// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package backfill

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/database"
	"github.com/tomtom215/catalogmirror/internal/models"
)

func TestDriverAgainstDuckDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping DuckDB test in short mode")
	}

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	checkNoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	checkNoError(t, db.UpsertCatalogItems(ctx, []*models.CatalogItem{{
		ID:           "i1",
		ServerID:     "srv",
		LibraryID:    "lib",
		Name:         "Heat",
		Type:         models.ItemTypeMovie,
		RunTimeTicks: 10200 * models.TicksPerSecond,
	}}))
	checkNoError(t, db.UpsertUsers(ctx, []models.User{{ID: "u1", ServerID: "srv", Name: "alice"}}))
	_, err = db.InsertActivityEvents(ctx, []models.ActivityEvent{
		event(1, "u1", "i1", "alice is playing Heat", 0),
		event(2, "u1", "i1", "Playback Stopped", 50*time.Minute),
		event(3, "u1", "missing", "alice is playing Ghost", time.Hour),
	})
	checkNoError(t, err)

	d := NewDriver("srv", db, nil, nil, DriverConfig{BatchSize: 1000})

	first, err := d.Run(ctx, rangeFrom, rangeTo)
	checkNoError(t, err)
	checkIntEqual(t, "first created", first.SessionsCreated, 1)
	checkIntEqual(t, "first missing", first.SessionsMissingRef, 1)

	second, err := d.Run(ctx, rangeFrom, rangeTo)
	checkNoError(t, err)
	checkIntEqual(t, "second created", second.SessionsCreated, 0)
	checkIntEqual(t, "second skipped", second.SessionsSkipped, 1)

	count, err := db.CountSessions(ctx, "srv", models.SessionSourceHistorical)
	checkNoError(t, err)
	checkIntEqual(t, "historical sessions", count, 1)

	sessions, err := db.ListSessionsByItem(ctx, "srv", "i1")
	checkNoError(t, err)
	checkIntEqual(t, "sessions for item", len(sessions), 1)
	checkInt64Equal(t, "play duration", sessions[0].PlayDuration, 2400)
	checkBool(t, "completed", sessions[0].Completed, true)

	results, err := db.ListHistoricalSyncResults(ctx, "srv", 10)
	checkNoError(t, err)
	checkIntEqual(t, "result rows", len(results), 2)
}

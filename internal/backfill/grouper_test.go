// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package backfill

import (
	"testing"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

func TestGroup(t *testing.T) {
	events := []models.ActivityEvent{
		event(3, "u1", "i1", "Playback Stopped", 40*time.Minute),
		event(1, "u1", "i1", "alice is playing Item", 5*time.Minute),
		event(2, "u2", "i1", "bob is playing Item", 10*time.Minute),
		event(4, "u1", "i1", "alice is playing Item", 65*time.Minute), // next hour
		event(5, "", "i1", "Playback Stopped", 20*time.Minute),
		event(6, "u1", "", "Playback Stopped", 20*time.Minute),
	}
	nonPlayback := event(7, "u1", "i1", "alice logged in", 30*time.Minute)
	nonPlayback.Type = "SessionStarted"
	events = append(events, nonPlayback)

	got := Group(events)
	checkIntEqual(t, "candidates", len(got), 3)

	first := got[0]
	checkBool(t, "first is u1/i1", first.UserID == "u1" && first.ItemID == "i1", true)
	checkIntEqual(t, "first events", len(first.Events), 2)
	checkInt64Equal(t, "first event id", first.Events[0].ID, 1)
	checkInt64Equal(t, "second event id", first.Events[1].ID, 3)
	checkInt64Equal(t, "bucket", first.HourBucket, baseTime.Unix()/3600)

	checkBool(t, "second is u2", got[1].UserID == "u2", true)
	checkBool(t, "third is next hour", got[2].HourBucket == first.HourBucket+1, true)
}

func TestGroupEmpty(t *testing.T) {
	checkIntEqual(t, "candidates", len(Group(nil)), 0)
}

func TestHourBucket(t *testing.T) {
	at := time.Date(2023, 3, 4, 20, 59, 59, 0, time.UTC)
	checkInt64Equal(t, "same hour", hourBucket(at), hourBucket(at.Truncate(time.Hour)))
	checkInt64Equal(t, "next hour", hourBucket(at.Add(time.Second)), hourBucket(at)+1)
	checkInt64Equal(t, "pre-epoch", hourBucket(time.Unix(-1, 0)), -1)
}

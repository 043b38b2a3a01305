// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package backfill

import (
	"sort"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

const bucketWidth = time.Hour

// hourBucket returns floor(unix seconds / 3600).
func hourBucket(t time.Time) int64 {
	secs := t.Unix()
	width := int64(bucketWidth / time.Second)
	b := secs / width
	if secs < 0 && secs%width != 0 {
		b--
	}
	return b
}

type groupKey struct {
	serverID string
	userID   string
	itemID   string
	bucket   int64
}

// Group partitions playback events into session candidates keyed by
// (user, item, hour bucket). Events without a user or item, and
// non-playback events, are dropped. Candidates come out in order of their
// earliest event; events inside a candidate are chronological.
func Group(events []models.ActivityEvent) []models.SessionCandidate {
	index := make(map[groupKey]int)
	candidates := make([]models.SessionCandidate, 0)

	for i := range events {
		e := events[i]
		if e.UserID == "" || e.ItemID == "" || !IsPlaybackEvent(e.Type, e.Name) {
			continue
		}
		key := groupKey{e.ServerID, e.UserID, e.ItemID, hourBucket(e.Date)}
		pos, ok := index[key]
		if !ok {
			pos = len(candidates)
			index[key] = pos
			candidates = append(candidates, models.SessionCandidate{
				ServerID:   e.ServerID,
				UserID:     e.UserID,
				ItemID:     e.ItemID,
				HourBucket: key.bucket,
			})
		}
		candidates[pos].Events = append(candidates[pos].Events, e)
	}

	for i := range candidates {
		sortEvents(candidates[i].Events)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Events[0].Date.Before(candidates[j].Events[0].Date)
	})
	return candidates
}

func sortEvents(events []models.ActivityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date.Equal(events[j].Date) {
			return events[i].ID < events[j].ID
		}
		return events[i].Date.Before(events[j].Date)
	})
}

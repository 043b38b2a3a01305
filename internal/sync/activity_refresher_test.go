// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

func TestNormalizeGUID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"6F1C2D3E-4A5B-6C7D-8E9F-0A1B2C3D4E5F", "6f1c2d3e4a5b6c7d8e9f0a1b2c3d4e5f"},
		{"6f1c2d3e4a5b6c7d8e9f0a1b2c3d4e5f", "6f1c2d3e4a5b6c7d8e9f0a1b2c3d4e5f"},
		{"00000000-0000-0000-0000-000000000000", ""},
		{"00000000000000000000000000000000", ""},
		{"", ""},
	}
	for _, tt := range tests {
		checkStringEqual(t, tt.input, normalizeGUID(tt.input), tt.want)
	}
}

func TestMapActivityEntry(t *testing.T) {
	entry := &models.RemoteActivityEntry{
		ID:     42,
		Name:   "alice is playing Heat",
		Type:   "VideoPlayback",
		ItemID: "item-1",
		UserID: "AB-CD",
		Date:   "2023-03-04T20:10:00.1234567Z",
	}

	event, ok := MapActivityEntry("srv", entry)
	checkTrue(t, "mapped", ok)
	checkStringEqual(t, "server", event.ServerID, "srv")
	checkStringEqual(t, "user", event.UserID, "abcd")
	checkStringEqual(t, "item", event.ItemID, "item-1")
	checkTrue(t, "microsecond precision", event.Date.Nanosecond() == 123456000)

	entry.Date = "0001-01-01T00:00:00Z"
	_, ok = MapActivityEntry("srv", entry)
	checkFalse(t, "zero date rejected", ok)
}

func activityEntries(n int) []models.RemoteActivityEntry {
	base := time.Date(2023, 3, 4, 20, 0, 0, 0, time.UTC)
	entries := make([]models.RemoteActivityEntry, n)
	for i := range entries {
		entries[i] = models.RemoteActivityEntry{
			ID:     int64(i + 1),
			Name:   fmt.Sprintf("alice is playing item %d", i),
			Type:   "VideoPlayback",
			UserID: "user-1",
			ItemID: fmt.Sprintf("item-%d", i),
			Date:   base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
	}
	return entries
}

func TestActivityLogRefresher_PagesAndDeduplicates(t *testing.T) {
	client := newFakeClient()
	client.activity = activityEntries(7)
	store := newFakeStore()

	r := NewActivityLogRefresher("srv", client, store, ActivityRefresherConfig{PageSize: 3, Concurrency: 2})

	n, err := r.Refresh(context.Background(), nil)
	checkNoError(t, err)
	checkIntEqual(t, "stored", n, 7)

	n, err = r.Refresh(context.Background(), nil)
	checkNoError(t, err)
	checkIntEqual(t, "stored on rerun", n, 0)

	checkIntEqual(t, "rows", len(store.activity), 7)
	checkStringEqual(t, "user normalized", store.activity[1].UserID, "user1")
}

func TestActivityLogRefresher_SkipsUndatedEntries(t *testing.T) {
	client := newFakeClient()
	client.activity = activityEntries(2)
	client.activity[1].Date = ""
	store := newFakeStore()

	n, err := NewActivityLogRefresher("srv", client, store, ActivityRefresherConfig{}).Refresh(context.Background(), nil)
	checkNoError(t, err)
	checkIntEqual(t, "stored", n, 1)
}

func TestActivityLogRefresher_CanceledDuringDelay(t *testing.T) {
	client := newFakeClient()
	client.activity = activityEntries(5)
	store := newFakeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r := NewActivityLogRefresher("srv", client, store, ActivityRefresherConfig{PageSize: 2, RequestDelay: time.Hour})
	n, err := r.Refresh(ctx, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	checkIntEqual(t, "first page stored", n, 2)
}

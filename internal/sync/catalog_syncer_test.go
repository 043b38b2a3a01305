// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

func newTestSyncer(client *fakeClient, store *fakeStore) *CatalogSyncer {
	return NewCatalogSyncer("srv", client, store, testSyncerConfig())
}

func TestCatalogSyncer_SecondRunIsIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		items []remoteItem
	}{
		{
			name: "with version tags",
			items: []remoteItem{
				movie("a", "Heat", "/m/heat.mkv", "e1"),
				movie("b", "Ronin", "/m/ronin.mkv", "e2"),
				movie("c", "Thief", "/m/thief.mkv", "e3"),
			},
		},
		{
			name: "without version tags",
			items: []remoteItem{
				movie("a", "Heat", "/m/heat.mkv", ""),
				movie("b", "Ronin", "/m/ronin.mkv", ""),
				movie("c", "Thief", "/m/thief.mkv", ""),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.addLibrary("lib", tt.items...)
			store := newFakeStore()
			syncer := newTestSyncer(client, store)

			first := syncer.Sync(context.Background())
			checkStatus(t, first.Status, models.SyncStatusSuccess)
			checkIntEqual(t, "first inserted", first.Counts.ItemsInserted, 3)
			checkIntEqual(t, "first libraries", first.Counts.LibrariesProcessed, 1)

			second := syncer.Sync(context.Background())
			checkStatus(t, second.Status, models.SyncStatusSuccess)
			checkIntEqual(t, "second processed", second.Counts.ItemsProcessed, 3)
			checkIntEqual(t, "second inserted", second.Counts.ItemsInserted, 0)
			checkIntEqual(t, "second updated", second.Counts.ItemsUpdated, 0)
			checkIntEqual(t, "second unchanged", second.Counts.ItemsUnchanged, 3)

			inserts, updates := store.counters()
			checkIntEqual(t, "store inserts", inserts, 3)
			checkIntEqual(t, "store updates", updates, 0)
		})
	}
}

func TestCatalogSyncer_PaginatesInOffsetOrder(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("lib",
		movie("a", "A", "/a", "1"), movie("b", "B", "/b", "1"), movie("c", "C", "/c", "1"),
		movie("d", "D", "/d", "1"), movie("e", "E", "/e", "1"))
	store := newFakeStore()

	result := newTestSyncer(client, store).Sync(context.Background())
	checkStatus(t, result.Status, models.SyncStatusSuccess)
	checkIntEqual(t, "processed", result.Counts.ItemsProcessed, 5)
	checkTrue(t, "offsets 0,2,4", slices.Equal(client.pageCalls["lib"], []int{0, 2, 4}))
}

func TestCatalogSyncer_IdentityMigrationPreservesHistory(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("lib", movie("a", "Heat", "/m/heat.mkv", "e1"))
	store := newFakeStore()
	syncer := newTestSyncer(client, store)

	first := syncer.Sync(context.Background())
	checkIntEqual(t, "inserted", first.Counts.ItemsInserted, 1)

	store.sessions = append(store.sessions, &models.Session{
		ID: "s1", ServerID: "srv", UserID: "u1", ItemID: "a",
		StartTime: time.Now().Add(-time.Hour), EndTime: time.Now(),
	})

	// Re-scan: same file and provider id, new upstream id.
	client.setItems("lib", movie("b", "Heat", "/m/heat.mkv", "e9"))
	second := syncer.Sync(context.Background())

	checkStatus(t, second.Status, models.SyncStatusSuccess)
	checkIntEqual(t, "migrated", second.Counts.ItemsMigrated, 1)
	checkIntEqual(t, "inserted", second.Counts.ItemsInserted, 0)
	checkTrue(t, "old item gone", store.item("a") == nil)
	checkTrue(t, "new item present", store.item("b") != nil)
	checkIntEqual(t, "sessions", len(store.sessions), 1)
	checkStringEqual(t, "session item", store.sessions[0].ItemID, "b")
}

func TestCatalogSyncer_NameAndTypeOnlyDoesNotMigrate(t *testing.T) {
	show := func(id, path string) remoteItem {
		return remoteItem{ID: id, Name: "The Wire", Type: models.ItemTypeSeries, Path: path, Etag: id}
	}
	client := newFakeClient()
	client.addLibrary("lib", show("x", "/tv/the-wire"))
	store := newFakeStore()
	syncer := newTestSyncer(client, store)
	syncer.Sync(context.Background())

	client.setItems("lib", show("y", "/tv/the-wire-2002"))
	result := syncer.Sync(context.Background())

	checkIntEqual(t, "migrated", result.Counts.ItemsMigrated, 0)
	checkIntEqual(t, "inserted", result.Counts.ItemsInserted, 1)
	checkTrue(t, "old item kept", store.item("x") != nil)
	checkTrue(t, "new item inserted", store.item("y") != nil)
	checkIntEqual(t, "migration attempts", store.migrateCalls, 0)
}

func TestCatalogSyncer_SeenItemsAreNotCandidates(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("lib", movie("a", "Heat", "/m/heat.mkv", "e1"))
	store := newFakeStore()
	syncer := newTestSyncer(client, store)
	syncer.Sync(context.Background())

	// "a" is still upstream on page 1, so "c" on page 2 must not steal it.
	client.setItems("lib",
		movie("a", "Heat", "/m/heat.mkv", "e1"),
		movie("b", "Ronin", "/m/ronin.mkv", "e1"),
		movie("c", "Heat", "/m/heat.mkv", "e1"))
	result := syncer.Sync(context.Background())

	checkIntEqual(t, "migrated", result.Counts.ItemsMigrated, 0)
	checkIntEqual(t, "inserted", result.Counts.ItemsInserted, 2)
	checkTrue(t, "a kept", store.item("a") != nil)
}

func TestCatalogSyncer_OverviewChangeIsUpdate(t *testing.T) {
	item := movie("a", "Heat", "/m/heat.mkv", "e1")
	item.Overview = "A group of professional bank robbers."
	client := newFakeClient()
	client.addLibrary("lib", item)
	store := newFakeStore()
	syncer := newTestSyncer(client, store)
	syncer.Sync(context.Background())

	item.Overview = "A group of high-end professional thieves."
	item.Etag = "e2"
	client.setItems("lib", item)
	result := syncer.Sync(context.Background())

	checkIntEqual(t, "updated", result.Counts.ItemsUpdated, 1)
	checkIntEqual(t, "inserted", result.Counts.ItemsInserted, 0)
	checkIntEqual(t, "unchanged", result.Counts.ItemsUnchanged, 0)
	checkStringEqual(t, "overview", store.item("a").Overview, item.Overview)
}

func TestCatalogSyncer_PartialFailureIsolation(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("x",
		movie("x1", "X1", "/x/1", "1"), movie("x2", "X2", "/x/2", "1"), movie("x3", "X3", "/x/3", "1"),
		movie("x4", "X4", "/x/4", "1"), movie("x5", "X5", "/x/5", "1"))
	client.addLibrary("y", movie("y1", "Y1", "/y/1", "1"), movie("y2", "Y2", "/y/2", "1"), movie("y3", "Y3", "/y/3", "1"))
	client.failOffset["x"] = 2 // page 2
	store := newFakeStore()

	result := newTestSyncer(client, store).Sync(context.Background())

	checkStatus(t, result.Status, models.SyncStatusPartial)
	checkIntEqual(t, "libraries completed", result.Counts.LibrariesProcessed, 1)
	checkIntEqual(t, "inserted", result.Counts.ItemsInserted, 5)
	checkIntEqual(t, "errors", len(result.Errors), 1)
	checkTrue(t, "error names library x", strings.Contains(result.Errors[0], "library x"))
	for _, id := range []string{"y1", "y2", "y3", "x1", "x2"} {
		checkTrue(t, id+" stored", store.item(id) != nil)
	}
	checkTrue(t, "x3 not stored", store.item("x3") == nil)
	checkTrue(t, "x stopped after failing page", slices.Equal(client.pageCalls["x"], []int{0, 2}))
}

func TestCatalogSyncer_LibraryEnumerationFailure(t *testing.T) {
	t.Run("fetch error", func(t *testing.T) {
		client := newFakeClient()
		client.libErr = errUpstream
		result := newTestSyncer(client, newFakeStore()).Sync(context.Background())
		checkStatus(t, result.Status, models.SyncStatusError)
		checkTrue(t, "error recorded", len(result.Errors) == 1 && strings.Contains(result.Errors[0], "enumerate libraries"))
	})

	t.Run("no libraries", func(t *testing.T) {
		result := newTestSyncer(newFakeClient(), newFakeStore()).Sync(context.Background())
		checkStatus(t, result.Status, models.SyncStatusError)
		checkTrue(t, "no libraries error", len(result.Errors) == 1 && result.Errors[0] == ErrNoLibraries.Error())
	})
}

func TestCatalogSyncer_MalformedItemIsSkipped(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("lib", movie("a", "Heat", "/m/heat.mkv", "1"), remoteItem{Name: "No Id", Type: models.ItemTypeMovie})
	store := newFakeStore()

	result := newTestSyncer(client, store).Sync(context.Background())

	checkStatus(t, result.Status, models.SyncStatusPartial)
	checkIntEqual(t, "item errors", result.Counts.ItemErrors, 1)
	checkIntEqual(t, "inserted", result.Counts.ItemsInserted, 1)
	checkIntEqual(t, "libraries", result.Counts.LibrariesProcessed, 1)
}

func TestCatalogSyncer_MigrationRollbackLeavesItemUnsynced(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("lib", movie("a", "Heat", "/m/heat.mkv", "e1"))
	store := newFakeStore()
	syncer := newTestSyncer(client, store)
	syncer.Sync(context.Background())

	store.migrateErr = errors.New("constraint violation")
	client.setItems("lib", movie("b", "Heat", "/m/heat.mkv", "e2"))
	result := syncer.Sync(context.Background())

	checkStatus(t, result.Status, models.SyncStatusPartial)
	checkIntEqual(t, "item errors", result.Counts.ItemErrors, 1)
	checkIntEqual(t, "inserted", result.Counts.ItemsInserted, 0)
	checkTrue(t, "old item kept", store.item("a") != nil)
	checkTrue(t, "new item not inserted", store.item("b") == nil)

	// Next pass retries the same match.
	store.migrateErr = nil
	retry := syncer.Sync(context.Background())
	checkIntEqual(t, "migrated on retry", retry.Counts.ItemsMigrated, 1)
}

func TestCatalogSyncer_FlagsRemovedLibraries(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("keep", movie("a", "A", "/a", "1"))
	client.addLibrary("gone", movie("b", "B", "/b", "1"))
	store := newFakeStore()
	syncer := newTestSyncer(client, store)
	syncer.Sync(context.Background())

	client.libraries = client.libraries[:1]
	syncer.Sync(context.Background())

	checkTrue(t, "gone flagged", store.libraries["gone"].RemovedAt != nil)
	checkTrue(t, "keep not flagged", store.libraries["keep"].RemovedAt == nil)
	checkTrue(t, "items of removed library kept", store.item("b") != nil)
}

func TestCatalogSyncer_SyncLibrariesOnlyTouchesGivenLibraries(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("one", movie("a", "A", "/a", "1"))
	client.addLibrary("two", movie("b", "B", "/b", "1"))
	store := newFakeStore()

	result := newTestSyncer(client, store).SyncLibraries(context.Background(), []string{"two"})

	checkStatus(t, result.Status, models.SyncStatusSuccess)
	checkIntEqual(t, "libraries", result.Counts.LibrariesProcessed, 1)
	checkTrue(t, "a untouched", store.item("a") == nil)
	checkTrue(t, "b stored", store.item("b") != nil)
}

func TestCatalogSyncer_RecentlyAddedDiffsEveryField(t *testing.T) {
	item := movie("a", "Heat", "/m/heat.mkv", "e1")
	item.Overview = "old"
	client := newFakeClient()
	client.addLibrary("lib", item)
	store := newFakeStore()
	syncer := newTestSyncer(client, store)
	syncer.Sync(context.Background())

	// Upstream metadata changed without a version-tag bump.
	item.Overview = "new"
	client.setItems("lib", item)

	full := syncer.Sync(context.Background())
	checkIntEqual(t, "full pass trusts tag", full.Counts.ItemsUnchanged, 1)

	recent := syncer.SyncRecentlyAdded(context.Background(), 10)
	checkStatus(t, recent.Status, models.SyncStatusSuccess)
	checkTrue(t, "recent mode", recent.Mode == models.SyncModeRecent)
	checkIntEqual(t, "recent updated", recent.Counts.ItemsUpdated, 1)
	checkStringEqual(t, "overview", store.item("a").Overview, "new")
}

func TestCatalogSyncer_StoredLookupFailureAbortsLibrary(t *testing.T) {
	client := newFakeClient()
	client.addLibrary("lib", movie("a", "A", "/a", "1"))
	store := newFakeStore()
	store.lookupErr = errors.New("database is locked")

	result := newTestSyncer(client, store).Sync(context.Background())

	checkStatus(t, result.Status, models.SyncStatusPartial)
	checkIntEqual(t, "libraries", result.Counts.LibrariesProcessed, 0)
	checkIntEqual(t, "processed", result.Counts.ItemsProcessed, 1)
}

func TestResultStatus(t *testing.T) {
	tests := []struct {
		name   string
		counts models.SyncCounts
		errs   []string
		want   models.SyncStatus
	}{
		{"clean", models.SyncCounts{ItemsProcessed: 3}, nil, models.SyncStatusSuccess},
		{"clean empty", models.SyncCounts{}, nil, models.SyncStatusSuccess},
		{"errors with items", models.SyncCounts{ItemsProcessed: 1}, []string{"x"}, models.SyncStatusPartial},
		{"errors with libraries", models.SyncCounts{LibrariesProcessed: 1}, []string{"x"}, models.SyncStatusPartial},
		{"errors only", models.SyncCounts{}, []string{"x"}, models.SyncStatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkStatus(t, resultStatus(tt.counts, tt.errs), tt.want)
		})
	}
}

func TestSyncTally_CapsErrors(t *testing.T) {
	tally := &syncTally{serverID: "srv"}
	for i := 0; i < maxResultErrors+5; i++ {
		tally.fail("error %d", i)
	}
	_, errs := tally.snapshot()
	checkIntEqual(t, "kept", len(errs), maxResultErrors+1)
	checkStringEqual(t, "summary", errs[len(errs)-1], "... and 5 more errors")
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package database

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/tomtom215/catalogmirror/internal/models"
)

func TestUpsertCatalogItems_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := newTestItem("srv", "item-1", "lib-1")
	checkNoError(t, db.UpsertCatalogItems(ctx, []*models.CatalogItem{item}))

	got, err := db.GetCatalogItem(ctx, "srv", "item-1")
	checkNoError(t, err)

	checkStringEqual(t, "Name", got.Name, item.Name)
	checkStringEqual(t, "Path", got.Path, item.Path)
	checkStringEqual(t, "VersionTag", got.VersionTag, item.VersionTag)
	checkStringEqual(t, "Overview", got.Overview, item.Overview)
	if !reflect.DeepEqual(got.ProviderIDs, item.ProviderIDs) {
		t.Errorf("ProviderIDs: expected %v, got %v", item.ProviderIDs, got.ProviderIDs)
	}
	if !reflect.DeepEqual(got.Genres, item.Genres) {
		t.Errorf("Genres: expected %v, got %v", item.Genres, got.Genres)
	}
	if got.ProductionYear == nil || *got.ProductionYear != 1995 {
		t.Errorf("ProductionYear: expected 1995, got %v", got.ProductionYear)
	}
	if got.PremiereDate == nil || !got.PremiereDate.Equal(*item.PremiereDate) {
		t.Errorf("PremiereDate: expected %v, got %v", item.PremiereDate, got.PremiereDate)
	}
	if got.RunTimeTicks != item.RunTimeTicks {
		t.Errorf("RunTimeTicks: expected %d, got %d", item.RunTimeTicks, got.RunTimeTicks)
	}
	checkStringEqual(t, "RawSnapshot", string(got.RawSnapshot), string(item.RawSnapshot))
	if got.IndexNumber != nil {
		t.Errorf("IndexNumber: expected nil, got %d", *got.IndexNumber)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestUpsertCatalogItems_ConflictUpdatesKeepsCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := newTestItem("srv", "item-1", "lib-1")
	checkNoError(t, db.UpsertCatalogItems(ctx, []*models.CatalogItem{item}))
	first, err := db.GetCatalogItem(ctx, "srv", "item-1")
	checkNoError(t, err)

	changed := newTestItem("srv", "item-1", "lib-1")
	changed.Overview = "Rewritten overview"
	changed.VersionTag = "etag-2"
	checkNoError(t, db.UpsertCatalogItems(ctx, []*models.CatalogItem{changed}))

	second, err := db.GetCatalogItem(ctx, "srv", "item-1")
	checkNoError(t, err)
	checkStringEqual(t, "Overview", second.Overview, "Rewritten overview")
	checkStringEqual(t, "VersionTag", second.VersionTag, "etag-2")
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on conflict update: %v -> %v", first.CreatedAt, second.CreatedAt)
	}

	n, err := db.CountCatalogItems(ctx, "srv")
	checkNoError(t, err)
	checkIntEqual(t, "item count", n, 1)
}

func TestUpsertCatalogItems_DuplicateIDsInBatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := newTestItem("srv", "dup", "lib-1")
	b := newTestItem("srv", "dup", "lib-1")
	b.Name = "Heat (Director's Cut)"

	checkNoError(t, db.UpsertCatalogItems(ctx, []*models.CatalogItem{a, b}))

	got, err := db.GetCatalogItem(ctx, "srv", "dup")
	checkNoError(t, err)
	checkStringEqual(t, "Name", got.Name, "Heat (Director's Cut)")
}

func TestUpsertCatalogItems_Chunked(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	items := make([]*models.CatalogItem, 0, 250)
	for i := 0; i < 250; i++ {
		items = append(items, newTestItem("srv", fmt.Sprintf("item-%03d", i), "lib-1"))
	}
	checkNoError(t, db.UpsertCatalogItems(ctx, items))

	n, err := db.CountCatalogItems(ctx, "srv")
	checkNoError(t, err)
	checkIntEqual(t, "item count", n, 250)

	listed, err := db.ListLibraryItems(ctx, "srv", "lib-1")
	checkNoError(t, err)
	checkIntEqual(t, "listed", len(listed), 250)
	checkStringEqual(t, "first id", listed[0].ID, "item-000")
}

func TestGetCatalogItem_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetCatalogItem(context.Background(), "srv", "missing")
	checkErrorIs(t, err, ErrItemNotFound)
}

func TestGetCatalogItems_Batch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	checkNoError(t, db.UpsertCatalogItems(ctx, []*models.CatalogItem{
		newTestItem("srv", "a", "lib-1"),
		newTestItem("srv", "b", "lib-1"),
		newTestItem("other", "c", "lib-9"),
	}))

	found, err := db.GetCatalogItems(ctx, "srv", []string{"a", "b", "c", "zzz"})
	checkNoError(t, err)
	checkIntEqual(t, "found", len(found), 2)
	if _, ok := found["c"]; ok {
		t.Error("item of another server must not be returned")
	}

	empty, err := db.GetCatalogItems(ctx, "srv", nil)
	checkNoError(t, err)
	checkIntEqual(t, "empty lookup", len(empty), 0)
}

func TestUpdateCatalogItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	item := newTestItem("srv", "item-1", "lib-1")
	checkNoError(t, db.UpsertCatalogItems(ctx, []*models.CatalogItem{item}))

	item.Overview = "New overview"
	item.Genres = nil
	item.ProductionYear = nil
	checkNoError(t, db.UpdateCatalogItem(ctx, item))

	got, err := db.GetCatalogItem(ctx, "srv", "item-1")
	checkNoError(t, err)
	checkStringEqual(t, "Overview", got.Overview, "New overview")
	checkSliceEmpty(t, "Genres", len(got.Genres))
	if got.ProductionYear != nil {
		t.Errorf("ProductionYear should be cleared, got %d", *got.ProductionYear)
	}

	missing := newTestItem("srv", "nope", "lib-1")
	checkErrorIs(t, db.UpdateCatalogItem(ctx, missing), ErrItemNotFound)
}

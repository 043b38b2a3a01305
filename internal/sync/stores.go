// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/catalogmirror/internal/backfill"
	"github.com/tomtom215/catalogmirror/internal/models"
)

var (
	// ErrNoLibraries is returned when a server reports no libraries at all.
	ErrNoLibraries = errors.New("server reported no libraries")

	// ErrUnknownServer is returned for a server id that is not configured.
	ErrUnknownServer = errors.New("unknown server")

	// ErrUnknownLibrary is returned for a library id that is not mirrored.
	ErrUnknownLibrary = errors.New("unknown library")

	// ErrSyncInProgress is returned when a pass for the same server is running.
	ErrSyncInProgress = errors.New("sync already in progress for server")

	// ErrBackfillInProgress is returned when a backfill for the same server is running.
	ErrBackfillInProgress = errors.New("backfill already in progress for server")
)

// CatalogStore defines the database operations used by the catalog syncer.
type CatalogStore interface {
	GetCatalogItems(ctx context.Context, serverID string, ids []string) (map[string]*models.CatalogItem, error)
	ListLibraryItems(ctx context.Context, serverID, libraryID string) ([]*models.CatalogItem, error)
	UpsertCatalogItems(ctx context.Context, items []*models.CatalogItem) error
	UpdateCatalogItem(ctx context.Context, item *models.CatalogItem) error
	MigrateItemIdentity(ctx context.Context, oldID string, item *models.CatalogItem) (int64, error)
	UpsertLibraries(ctx context.Context, serverID string, libs []models.RemoteLibrary) error
	MarkLibrariesRemoved(ctx context.Context, serverID string, present []string) ([]models.Library, error)
	FindLibrary(ctx context.Context, libraryID string) (*models.Library, error)
}

// UserStore mirrors accounts.
type UserStore interface {
	UpsertUsers(ctx context.Context, users []models.User) error
}

// ActivityStore mirrors activity-log rows.
type ActivityStore interface {
	InsertActivityEvents(ctx context.Context, events []models.ActivityEvent) (int, error)
}

// RunStore persists run records.
type RunStore interface {
	InsertSyncRun(ctx context.Context, r *models.SyncResult) error
}

// Store is everything the Manager needs from the database, including the
// historical backfill surface.
type Store interface {
	CatalogStore
	UserStore
	ActivityStore
	RunStore
	backfill.Store
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

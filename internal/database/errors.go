// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package database

import "errors"

var (
	// ErrItemNotFound is returned by point lookups of catalog items.
	ErrItemNotFound = errors.New("catalog item not found")

	// ErrUserNotFound is returned by point lookups of users.
	ErrUserNotFound = errors.New("user not found")

	// ErrLibraryNotFound is returned when a library is not mirrored.
	ErrLibraryNotFound = errors.New("library not found")

	// ErrMigrationSourceMissing aborts an identity migration whose old item
	// row no longer exists (already migrated or never stored).
	ErrMigrationSourceMissing = errors.New("identity migration source item missing")

	// ErrItemIDConflict aborts an identity migration whose new id is already stored.
	ErrItemIDConflict = errors.New("catalog item id already exists")

	// ErrUnitOfWorkDone is returned when a finished unit of work is reused.
	ErrUnitOfWorkDone = errors.New("unit of work already committed or rolled back")
)

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

// Package models defines the data structures shared by the catalog mirror,
// the historical backfill and the relational store.
//
// Two families of types live here:
//
//   - Upstream payload shapes (RemoteItem, RemoteLibrary, RemoteUser,
//     RemoteActivityEntry) decoded from the Jellyfin/Emby REST API.
//   - Mirrored records (CatalogItem, Library, User, ActivityEvent, Session)
//     persisted in DuckDB, plus the run result records returned to callers.
//
// JSON tags on mirrored records use snake_case; upstream shapes use the
// server's PascalCase field names.
package models

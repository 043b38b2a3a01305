// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
Package sync mirrors a Jellyfin or Emby server's catalog, users and activity
log into the local DuckDB store.

The upstream server is identity-unstable: a rescan or provider re-match can
delete an item and recreate the same content under a new id. The sync keeps
viewing history attached to the content by recognising those re-creations and
migrating the stored row (and every session pointing at it) to the new id in
one transaction.

Key Components:

  - JellyfinClient: read-only REST client (rate limited, 429 backoff)
  - JellyfinCircuitBreakerClient: gobreaker wrapper around any CatalogClient
  - MapRemoteItem: raw /Items JSON to models.CatalogItem, keeping the raw snapshot
  - Classify / ClassifyThorough: New, Unchanged or Updated against the stored row
  - IdentityResolver: confidence scoring of stored items against a new arrival
  - CatalogSyncer: paginated full pass, single-library pass, recently-added pass
  - UserRefresher / ActivityLogRefresher: mirror /Users and the activity log
  - Manager: per-server orchestration, run records, library ownership cache

Full Pass:

 1. Fetch libraries; upsert them, flag stored libraries missing upstream.
 2. For each library (LibraryConcurrency at a time), fetch pages in offset
    order until offset >= TotalRecordCount or an empty page.
 3. For each page, look up stored rows in one query and process items
    ItemConcurrency at a time: unchanged items are skipped, changed items
    updated, new items either matched to a stored item of the same library
    (identity migration) or batch-inserted after the page.
 4. A failed page aborts only that library; a failed item only that item.

Result Status:

  - success: no errors
  - partial: errors, but at least one item or library was processed
  - error:   libraries could not be enumerated, or nothing was processed

Usage Example:

	libraries := sync.NewLibraryCache(cfg.Sync.LibraryCacheTTL)
	manager := sync.NewManager(cfg, db, libraries)

	for _, result := range manager.SyncAll(ctx) {
	    logging.Info().Str("server_id", result.ServerID).Str("status", string(result.Status)).Msg("sync done")
	}
*/
package sync

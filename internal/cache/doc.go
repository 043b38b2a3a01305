// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
Package cache provides a small thread-safe in-memory TTL cache.

The sync Manager uses it to remember which server owns a library id, so
that a single-library sync request does not hit the database every time.

# Overview

  - Generic keys and values (Cache[K, V])
  - Per-entry expiry, checked lazily on Get and by an optional sweeper
  - Predicate invalidation (DeleteFunc) for "drop everything for server X"
  - Hit and miss counters exported through internal/metrics

# Usage

	libs := cache.New[string, string]("library_server", 10*time.Minute)
	go libs.RunCleanup(ctx, time.Minute)

	libs.Set("lib-1", "jellyfin-main")
	if serverID, ok := libs.Get("lib-1"); ok {
	    // ...
	}

	// At the start of a full pass for one server
	libs.DeleteFunc(func(_ string, serverID string) bool { return serverID == "jellyfin-main" })

# Thread Safety

All methods are safe for concurrent use.
*/
package cache

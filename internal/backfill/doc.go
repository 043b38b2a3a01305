// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
Package backfill reconstructs viewing sessions for the period before native
session tracking existed, using the mirrored activity log as a proxy.

Pipeline:

  - Group: buckets playback events by (user, item, wall-clock hour)
  - Reconstructor: turns one bucket into a best-effort Session, skipping
    buckets whose item or user is not mirrored and buckets that fall within
    30 minutes of an existing session for the same user and item
  - Driver: refreshes users and the activity log, pages stored activity rows
    through a date range, and persists one HistoricalSyncResult per run

Estimates:

	playDuration    = max(60, floor((end - start) * 0.8)) seconds
	percentComplete = min(100, playDuration / runtime * 100), or 95/50
	                  (completed/not) when the runtime is unknown

The completion and playback-event heuristics live in heuristics.go and are
deliberately kept out of the data model.

Hour buckets are fixed wall-clock hours, so a session crossing an hour
boundary can be split in two. This is an accepted approximation.
*/
package backfill

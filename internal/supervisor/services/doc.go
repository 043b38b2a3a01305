// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
Package services provides suture.Service wrappers for the long-running parts
of catalogmirror.

Each wrapper translates a component's own lifecycle into suture's
context-aware Serve pattern and implements fmt.Stringer so supervisor log
events name the service.

# Available Services

Scheduler (SchedulerService):
  - Drives full catalog passes, recently-added passes and historical
    backfills from cron schedules (robfig/cron)
  - Optional startup passes
  - Overlapping firings of the same job are skipped, not queued

HTTP Server (HTTPServerService):
  - Wraps *http.Server for the ops endpoint
  - Graceful shutdown with a bounded drain timeout

# Shutdown

Canceling the Serve context stops the scheduler from firing new jobs and
cancels the running ones; Serve returns once they have unwound.
*/
package services

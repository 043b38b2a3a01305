// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
Package api provides the ops HTTP endpoint using the Chi router.

Routes:

	GET  /health                     liveness plus database connectivity
	GET  /metrics                    Prometheus exposition
	GET  /api/v1/status              per-server breaker state and last results
	POST /api/v1/sync/{serverID}     start a full catalog pass (202)
	POST /api/v1/backfill/{serverID} start a historical backfill (202)

Trigger endpoints return once the job is admitted: 404 for an unknown
server, 409 when a job of the same kind is already running for that server,
400 for an unparseable backfill range. Jobs run on the process context, not
the request context, so a client disconnect never aborts a pass.

Backfill accepts optional from/to query parameters (RFC 3339 or YYYY-MM-DD);
missing bounds default to the configured days_back window.

Responses use the models.APIResponse envelope encoded with goccy/go-json.
*/
package api

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
Package middleware provides HTTP middleware for the ops endpoint.

Components:

  - RequestID: honors or generates X-Request-ID and starts a correlation ID
    so that a sync or backfill triggered over HTTP logs under one ID
  - PrometheusMetrics: request count and latency per chi route pattern

Both use the func(http.Handler) http.Handler shape and plug into chi's r.Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware

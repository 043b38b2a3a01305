// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

// Package metrics exposes Prometheus collectors for the catalog mirror,
// the historical backfill, the upstream circuit breaker and DuckDB.
//
// Collectors are registered on the default registry through promauto and
// served by the ops HTTP service at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item outcomes used as the "outcome" label of CatalogSyncItems.
const (
	OutcomeInserted  = "inserted"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeMigrated  = "migrated"
	OutcomeError     = "error"
)

// Session outcomes used as the "outcome" label of BackfillSessions.
const (
	SessionCreated    = "created"
	SessionDuplicate  = "duplicate"
	SessionMissingRef = "missing_ref"
	SessionError      = "error"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Catalog Sync Metrics
	CatalogSyncItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_items_total",
			Help: "Catalog items processed by outcome",
		},
		[]string{"server_id", "outcome"},
	)

	CatalogSyncPageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_page_errors_total",
			Help: "Page fetch failures that aborted a library pass",
		},
		[]string{"server_id"},
	)

	CatalogSyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_sync_runs_total",
			Help: "Catalog sync runs by mode and final status",
		},
		[]string{"server_id", "mode", "status"},
	)

	CatalogSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_sync_duration_seconds",
			Help:    "Wall-clock duration of catalog sync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"mode"},
	)

	CatalogSyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful full sync",
		},
		[]string{"server_id"},
	)

	// Identity Resolution Metrics
	IdentityMigrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_migrations_total",
			Help: "Identity migrations attempted, by result (committed, rolled_back)",
		},
		[]string{"result"},
	)

	IdentityMatchConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "identity_match_confidence",
			Help:    "Confidence score of accepted identity matches",
			Buckets: []float64{40, 50, 60, 70, 80, 90, 100},
		},
	)

	// Historical Backfill Metrics
	BackfillSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backfill_sessions_total",
			Help: "Session candidates by reconstruction outcome",
		},
		[]string{"outcome"},
	)

	BackfillActivitiesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backfill_activities_processed_total",
			Help: "Activity rows read by the historical backfill",
		},
	)

	BackfillDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backfill_duration_seconds",
			Help:    "Wall-clock duration of historical backfill runs",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 7200},
		},
	)

	ActivityRefreshEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_refresh_entries_total",
			Help: "Activity log entries fetched from upstream",
		},
		[]string{"server_id"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of ops API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Ops API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Scheduler Metrics
	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduled job runs by job and trigger",
		},
		[]string{"job", "trigger"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordCatalogItem counts one processed catalog item.
func RecordCatalogItem(serverID, outcome string) {
	CatalogSyncItems.WithLabelValues(serverID, outcome).Inc()
}

// RecordCatalogSync records a finished catalog sync run.
func RecordCatalogSync(serverID, mode, status string, duration time.Duration) {
	CatalogSyncRuns.WithLabelValues(serverID, mode, status).Inc()
	CatalogSyncDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if status == "success" && mode == "full" {
		CatalogSyncLastSuccess.WithLabelValues(serverID).SetToCurrentTime()
	}
}

// RecordIdentityMigration records a migration attempt and, when committed,
// the confidence of the match that triggered it.
func RecordIdentityMigration(confidence int, committed bool) {
	if !committed {
		IdentityMigrations.WithLabelValues("rolled_back").Inc()
		return
	}
	IdentityMigrations.WithLabelValues("committed").Inc()
	IdentityMatchConfidence.Observe(float64(confidence))
}

// RecordBackfillSession counts one reconstructed session candidate.
func RecordBackfillSession(outcome string) {
	BackfillSessions.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest records one ops API request. route is the matched
// route pattern, not the raw path, to keep label cardinality bounded.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}

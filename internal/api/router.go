// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/catalogmirror/internal/middleware"
	intsync "github.com/tomtom215/catalogmirror/internal/sync"
)

// Operator is the part of the sync Manager the ops endpoint drives.
type Operator interface {
	Servers() []string
	Status() []intsync.ServerStatus
	StartSync(ctx context.Context, serverID string) error
	StartBackfill(ctx context.Context, serverID string, from, to time.Time) error
	BackfillWindow() (from, to time.Time)
}

// triggerRateLimit caps job triggers per client IP per minute.
const triggerRateLimit = 10

var _ Operator = (*intsync.Manager)(nil)

// Pinger reports database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the ops endpoint.
type Handler struct {
	ops       Operator
	db        Pinger
	jobs      context.Context
	version   string
	startTime time.Time

	corsOrigins []string
}

// NewHandler creates a Handler. jobs is the context background passes run
// on; canceling it (process shutdown) cancels the passes. db may be nil.
func NewHandler(jobs context.Context, ops Operator, db Pinger, version string) *Handler {
	return &Handler{
		ops:       ops,
		db:        db,
		jobs:      jobs,
		version:   version,
		startTime: time.Now(),
	}
}

// WithCORS allows cross-origin reads of the ops endpoint from origins.
func (h *Handler) WithCORS(origins []string) *Handler {
	h.corsOrigins = origins
	return h
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if len(h.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(triggerRateLimit, time.Minute))
			r.Post("/sync/{serverID}", h.TriggerSync)
			r.Post("/backfill/{serverID}", h.TriggerBackfill)
		})
	})

	return r
}

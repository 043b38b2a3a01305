// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/catalogmirror/internal/backfill"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/models"
	intsync "github.com/tomtom215/catalogmirror/internal/sync"
)

// Health reports liveness. The status is "degraded" when the database does
// not answer a ping; the endpoint itself always returns 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	respondData(w, r, http.StatusOK, models.HealthStatus{
		Status:            status,
		Version:           h.version,
		DatabaseConnected: dbConnected,
		Servers:           len(h.ops.Servers()),
		Uptime:            time.Since(h.startTime).Seconds(),
	})
}

// Status returns breaker state and the last results per server.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.ops.Status())
}

// TriggerSync starts a full catalog pass for one server.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")

	if err := h.ops.StartSync(h.jobContext(r), serverID); err != nil {
		h.respondJobError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().Str("server_id", sanitizeLogValue(serverID)).Msg("Catalog sync triggered")
	respondData(w, r, http.StatusAccepted, models.JobAccepted{Kind: "sync", ServerID: serverID})
}

// TriggerBackfill starts a historical backfill for one server over
// [from, to). Missing bounds default to the configured window.
func (h *Handler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "serverID")

	from, to := h.ops.BackfillWindow()
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = ParseTimeParam(v); err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid from: "+err.Error(), nil)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = ParseTimeParam(v); err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid to: "+err.Error(), nil)
			return
		}
	}

	if err := h.ops.StartBackfill(h.jobContext(r), serverID, from, to); err != nil {
		h.respondJobError(w, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("server_id", sanitizeLogValue(serverID)).
		Time("from", from).
		Time("to", to).
		Msg("Historical backfill triggered")
	respondData(w, r, http.StatusAccepted, models.JobAccepted{
		Kind:      "backfill",
		ServerID:  serverID,
		RangeFrom: &from,
		RangeTo:   &to,
	})
}

// jobContext derives the context of a triggered job from the process
// context, carrying the request's correlation ID.
func (h *Handler) jobContext(r *http.Request) context.Context {
	return logging.ContextWithCorrelationID(h.jobs, logging.CorrelationIDFromContext(r.Context()))
}

// respondJobError maps Manager admission errors onto status codes.
func (h *Handler) respondJobError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, intsync.ErrUnknownServer):
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, intsync.ErrSyncInProgress), errors.Is(err, intsync.ErrBackfillInProgress):
		respondError(w, r, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, backfill.ErrInvalidRange):
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to start job", err)
	}
}

// ParseTimeParam accepts RFC 3339 timestamps and YYYY-MM-DD dates (UTC
// midnight).
func ParseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", v)
	}
	return t, nil
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package models

import "time"

// APIResponse is the envelope of every ops endpoint response.
//
// Status is "success" or "error"; Error is set only for errors.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is a machine-readable error code plus a human-readable message.
//
// Codes: VALIDATION_ERROR, NOT_FOUND, CONFLICT, INTERNAL_ERROR.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthStatus is the payload of /health.
type HealthStatus struct {
	Status            string  `json:"status"` // healthy | degraded
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	Servers           int     `json:"servers"`
	Uptime            float64 `json:"uptime_seconds"`
}

// JobAccepted is returned when a sync or backfill has been started.
type JobAccepted struct {
	Kind      string     `json:"kind"` // sync | backfill
	ServerID  string     `json:"server_id"`
	RangeFrom *time.Time `json:"range_from,omitempty"`
	RangeTo   *time.Time `json:"range_to,omitempty"`
}

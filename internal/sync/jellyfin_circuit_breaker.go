// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/metrics"
	"github.com/tomtom215/catalogmirror/internal/models"
)

// Ensure JellyfinCircuitBreakerClient implements CatalogClient
var _ CatalogClient = (*JellyfinCircuitBreakerClient)(nil)

// JellyfinCircuitBreakerClient wraps a CatalogClient with the circuit breaker pattern.
// An open breaker fails page fetches fast, which aborts only the affected
// library's pagination.
//
// DETERMINISM NOTE: the breaker uses real time (via sony/gobreaker) for its
// interval and timeout calculations.
type JellyfinCircuitBreakerClient struct {
	client CatalogClient
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewJellyfinCircuitBreakerClient wraps client in a breaker named after serverID.
// Circuit breaker configuration:
// - Max 3 concurrent requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after 60% failure rate with minimum 10 requests
func NewJellyfinCircuitBreakerClient(serverID string, client CatalogClient) *JellyfinCircuitBreakerClient {
	cbName := "jellyfin-api:" + serverID

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Str("breaker", cbName).Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &JellyfinCircuitBreakerClient{client: client, cb: cb, name: cbName}
}

// execute wraps an API call with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Str("breaker", cbc.name).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(counts.ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)
	return result, nil
}

// call runs fn through the breaker and asserts its result type.
func call[T any](cbc *JellyfinCircuitBreakerClient, op string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cbc.execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, errors.New("circuit breaker: unexpected result type for " + op)
	}
	return typed, nil
}

// Ping tests connectivity with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := cbc.execute(func() (interface{}, error) {
		return nil, cbc.client.Ping(ctx)
	})
	return err
}

// FetchLibraries lists media folders with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) FetchLibraries(ctx context.Context) ([]models.RemoteLibrary, error) {
	return call(cbc, "FetchLibraries", func() ([]models.RemoteLibrary, error) {
		return cbc.client.FetchLibraries(ctx)
	})
}

// FetchItemsPage fetches one item page with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) FetchItemsPage(ctx context.Context, libraryID string, offset, limit int) (*models.ItemsPage, error) {
	return call(cbc, "FetchItemsPage", func() (*models.ItemsPage, error) {
		return cbc.client.FetchItemsPage(ctx, libraryID, offset, limit)
	})
}

// FetchRecentItems fetches the newest items with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) FetchRecentItems(ctx context.Context, libraryID string, limit int) ([]json.RawMessage, error) {
	return call(cbc, "FetchRecentItems", func() ([]json.RawMessage, error) {
		return cbc.client.FetchRecentItems(ctx, libraryID, limit)
	})
}

// FetchUsers lists users with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) FetchUsers(ctx context.Context) ([]models.RemoteUser, error) {
	return call(cbc, "FetchUsers", func() ([]models.RemoteUser, error) {
		return cbc.client.FetchUsers(ctx)
	})
}

// FetchActivityLog fetches one activity-log page with circuit breaker protection
func (cbc *JellyfinCircuitBreakerClient) FetchActivityLog(ctx context.Context, offset, limit int, minDate *time.Time) (*models.ActivityPage, error) {
	return call(cbc, "FetchActivityLog", func() (*models.ActivityPage, error) {
		return cbc.client.FetchActivityLog(ctx, offset, limit, minDate)
	})
}

// State returns the current circuit breaker state
func (cbc *JellyfinCircuitBreakerClient) State() gobreaker.State {
	return cbc.cb.State()
}

// Counts returns the current circuit breaker counts
func (cbc *JellyfinCircuitBreakerClient) Counts() gobreaker.Counts {
	return cbc.cb.Counts()
}

// Name returns the circuit breaker name
func (cbc *JellyfinCircuitBreakerClient) Name() string {
	return cbc.name
}

// StateName returns the current state as "closed", "half-open" or "open".
func (cbc *JellyfinCircuitBreakerClient) StateName() string {
	return stateToString(cbc.cb.State())
}

// stateToFloat converts circuit breaker state to a gauge value
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

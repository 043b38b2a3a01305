// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/metrics"
	"github.com/tomtom215/catalogmirror/internal/models"
)

const (
	defaultBatchSize = 1000
	maxResultErrors  = 100
)

// ErrInvalidRange is returned when from is not before to.
var ErrInvalidRange = errors.New("backfill range start must be before its end")

// ActivityRefresher pulls the upstream activity log into the store.
type ActivityRefresher interface {
	Refresh(ctx context.Context, since *time.Time) (int, error)
}

// UserRefresher mirrors upstream users into the store.
type UserRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Store is everything the driver reads and writes.
type Store interface {
	SessionStore
	ListActivityRange(ctx context.Context, serverID string, from, to time.Time, offset, limit int) ([]models.ActivityEvent, error)
	InsertHistoricalSyncResult(ctx context.Context, r *models.HistoricalSyncResult) error
}

// DriverConfig controls batching.
type DriverConfig struct {
	BatchSize       int
	RefreshActivity bool
}

// DriverConfigFrom derives driver settings from the backfill config section.
func DriverConfigFrom(cfg *config.BackfillConfig) DriverConfig {
	return DriverConfig{
		BatchSize:       cfg.BatchSize,
		RefreshActivity: cfg.RefreshActivity,
	}
}

// Driver runs one historical backfill for a single server.
type Driver struct {
	serverID      string
	store         Store
	users         UserRefresher
	activity      ActivityRefresher
	reconstructor *Reconstructor
	cfg           DriverConfig
}

// NewDriver creates a driver. users and activity may be nil, in which case
// the corresponding refresh step is skipped.
func NewDriver(serverID string, store Store, users UserRefresher, activity ActivityRefresher, cfg DriverConfig) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Driver{
		serverID:      serverID,
		store:         store,
		users:         users,
		activity:      activity,
		reconstructor: NewReconstructor(store),
		cfg:           cfg,
	}
}

// runState accumulates counts and errors for one run.
type runState struct {
	result  *models.HistoricalSyncResult
	dropped int
}

func (s *runState) fail(err error) {
	if len(s.result.Errors) < maxResultErrors {
		s.result.Errors = append(s.result.Errors, err.Error())
		return
	}
	s.dropped++
}

func (s *runState) status() models.SyncStatus {
	if len(s.result.Errors) == 0 {
		return models.SyncStatusSuccess
	}
	if s.result.ActivitiesProcessed > 0 || s.result.ActivitiesSynced > 0 {
		return models.SyncStatusPartial
	}
	return models.SyncStatusError
}

// Run refreshes users and activity, then reconstructs sessions for
// activity rows dated in [from, to). The result is always persisted; the
// returned error is non-nil only for an invalid range or when the result
// record itself cannot be written.
func (d *Driver) Run(ctx context.Context, from, to time.Time) (*models.HistoricalSyncResult, error) {
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}

	ctx = logging.ContextWithServerID(logging.ContextWithNewCorrelationID(ctx), d.serverID)
	logger := logging.Ctx(ctx)

	state := &runState{result: &models.HistoricalSyncResult{
		ID:        uuid.New().String(),
		ServerID:  d.serverID,
		RangeFrom: from.UTC(),
		RangeTo:   to.UTC(),
		Errors:    []string{},
		StartedAt: time.Now().UTC(),
	}}

	logger.Info().
		Time("from", from).
		Time("to", to).
		Int("batch_size", d.cfg.BatchSize).
		Msg("Starting historical backfill")

	d.refresh(ctx, state, from)
	d.reconstructRange(ctx, state, from, to)

	return d.finish(ctx, state)
}

func (d *Driver) refresh(ctx context.Context, state *runState, from time.Time) {
	if d.users != nil {
		n, err := d.users.Refresh(ctx)
		if err != nil {
			state.fail(fmt.Errorf("user refresh: %w", err))
		} else {
			logging.Ctx(ctx).Debug().Int("users", n).Msg("Users refreshed")
		}
	}

	if d.activity != nil && d.cfg.RefreshActivity {
		since := from
		n, err := d.activity.Refresh(ctx, &since)
		state.result.ActivitiesSynced = n
		if err != nil {
			state.fail(fmt.Errorf("activity refresh: %w", err))
		}
	}
}

// reconstructRange pages activity rows and reconstructs sessions. Events of
// the newest hour bucket in a full batch are carried into the next batch so
// one viewing is not split across a batch boundary.
func (d *Driver) reconstructRange(ctx context.Context, state *runState, from, to time.Time) {
	var carry []models.ActivityEvent
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			state.fail(err)
			return
		}

		batch, err := d.store.ListActivityRange(ctx, d.serverID, from, to, offset, d.cfg.BatchSize)
		if err != nil {
			state.fail(fmt.Errorf("list activity at offset %d: %w", offset, err))
			return
		}
		state.result.ActivitiesProcessed += len(batch)
		metrics.BackfillActivitiesProcessed.Add(float64(len(batch)))
		offset += len(batch)
		last := len(batch) < d.cfg.BatchSize

		events := append(carry, batch...)
		carry = nil
		if !last {
			events, carry = splitTrailingBucket(events)
		}

		d.reconstructEvents(ctx, state, events)

		if last {
			return
		}
	}
}

// splitTrailingBucket separates events that share the newest event's hour
// bucket. When every event is in that bucket nothing is held back.
func splitTrailingBucket(events []models.ActivityEvent) (ready, held []models.ActivityEvent) {
	if len(events) == 0 {
		return events, nil
	}
	newest := hourBucket(events[len(events)-1].Date)
	cut := len(events)
	for cut > 0 && hourBucket(events[cut-1].Date) == newest {
		cut--
	}
	if cut == 0 {
		return events, nil
	}
	held = make([]models.ActivityEvent, len(events)-cut)
	copy(held, events[cut:])
	return events[:cut], held
}

func (d *Driver) reconstructEvents(ctx context.Context, state *runState, events []models.ActivityEvent) {
	for _, c := range Group(events) {
		outcome, session, err := d.reconstructor.Reconstruct(ctx, &c)
		if err != nil {
			metrics.RecordBackfillSession(metrics.SessionError)
			state.fail(fmt.Errorf("candidate user=%s item=%s hour=%d: %w", c.UserID, c.ItemID, c.HourBucket, err))
			continue
		}
		metrics.RecordBackfillSession(outcome.String())

		switch outcome {
		case OutcomeBuilt:
			state.result.SessionsCreated++
			logging.Ctx(ctx).Debug().
				Str("session_id", session.ID).
				Str("item_id", session.ItemID).
				Int64("play_duration", session.PlayDuration).
				Bool("completed", session.Completed).
				Msg("Reconstructed session")
		case OutcomeDuplicate:
			state.result.SessionsSkipped++
		case OutcomeMissingRef:
			state.result.SessionsMissingRef++
			logging.Ctx(ctx).Warn().
				Str("user_id", c.UserID).
				Str("item_id", c.ItemID).
				Int("events", len(c.Events)).
				Msg("Skipping session candidate with unmirrored item or user")
		}
	}
}

func (d *Driver) finish(ctx context.Context, state *runState) (*models.HistoricalSyncResult, error) {
	r := state.result
	if state.dropped > 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("... and %d more errors", state.dropped))
	}
	r.Status = state.status()
	r.FinishedAt = time.Now().UTC()
	metrics.BackfillDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())

	level := zerolog.InfoLevel
	if r.Status != models.SyncStatusSuccess {
		level = zerolog.WarnLevel
	}
	logging.Ctx(ctx).WithLevel(level).
		Str("status", string(r.Status)).
		Int("activities_synced", r.ActivitiesSynced).
		Int("activities_processed", r.ActivitiesProcessed).
		Int("sessions_created", r.SessionsCreated).
		Int("sessions_skipped", r.SessionsSkipped).
		Int("sessions_missing_ref", r.SessionsMissingRef).
		Int("errors", len(r.Errors)).
		Dur("duration", r.FinishedAt.Sub(r.StartedAt)).
		Msg("Historical backfill finished")

	// Persist with a fresh context so a cancelled run still leaves a record.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := d.store.InsertHistoricalSyncResult(persistCtx, r); err != nil {
		return r, fmt.Errorf("failed to persist historical sync result: %w", err)
	}
	return r, nil
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package backfill

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/catalogmirror/internal/database"
	"github.com/tomtom215/catalogmirror/internal/metrics"
	"github.com/tomtom215/catalogmirror/internal/models"
)

const (
	// DuplicateWindow is how close an existing session for the same user and
	// item must start for a candidate to be treated as already recorded.
	DuplicateWindow = 30 * time.Minute

	minPlayDurationSeconds = 60
	playDurationFactor     = 0.8
	completedThreshold     = 90.0

	// Fallback percentages when the item has no known runtime.
	fallbackCompletedPercent  = 95.0
	fallbackIncompletePercent = 50.0

	provenanceSource = "activity_log"
)

// ErrEmptyCandidate is returned for a candidate with no events.
var ErrEmptyCandidate = errors.New("session candidate has no events")

// Outcome is the result of reconstructing one candidate.
type Outcome int

const (
	OutcomeBuilt Outcome = iota
	OutcomeMissingRef
	OutcomeDuplicate
)

// String returns the metric label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeBuilt:
		return metrics.SessionCreated
	case OutcomeMissingRef:
		return metrics.SessionMissingRef
	case OutcomeDuplicate:
		return metrics.SessionDuplicate
	default:
		return "unknown"
	}
}

// SessionStore is the persistence surface the reconstructor needs.
// Lookups return database.ErrItemNotFound / database.ErrUserNotFound when
// the reference is not mirrored. FindSessionNear returns (nil, nil) when
// nothing is within the window.
type SessionStore interface {
	GetCatalogItem(ctx context.Context, serverID, id string) (*models.CatalogItem, error)
	GetUser(ctx context.Context, serverID, id string) (*models.User, error)
	FindSessionNear(ctx context.Context, serverID, userID, itemID string, at time.Time, window time.Duration) (*models.Session, error)
	InsertSession(ctx context.Context, s *models.Session) error
}

var _ SessionStore = (*database.DB)(nil)

// Reconstructor turns session candidates into persisted historical sessions.
type Reconstructor struct {
	store SessionStore
	now   func() time.Time
}

// NewReconstructor creates a reconstructor over store.
func NewReconstructor(store SessionStore) *Reconstructor {
	return &Reconstructor{store: store, now: time.Now}
}

// Build assembles a Session from a candidate without persisting it.
// It returns OutcomeMissingRef (and a nil session) when the item or user is
// not mirrored.
func (r *Reconstructor) Build(ctx context.Context, c *models.SessionCandidate) (*models.Session, Outcome, error) {
	if len(c.Events) == 0 {
		return nil, OutcomeMissingRef, ErrEmptyCandidate
	}
	events := make([]models.ActivityEvent, len(c.Events))
	copy(events, c.Events)
	sortEvents(events)

	item, err := r.store.GetCatalogItem(ctx, c.ServerID, c.ItemID)
	if errors.Is(err, database.ErrItemNotFound) {
		return nil, OutcomeMissingRef, nil
	}
	if err != nil {
		return nil, OutcomeMissingRef, fmt.Errorf("failed to look up item %s: %w", c.ItemID, err)
	}
	user, err := r.store.GetUser(ctx, c.ServerID, c.UserID)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, OutcomeMissingRef, nil
	}
	if err != nil {
		return nil, OutcomeMissingRef, fmt.Errorf("failed to look up user %s: %w", c.UserID, err)
	}

	start := events[0].Date
	end := events[len(events)-1].Date

	names := make([]string, len(events))
	ids := make([]int64, len(events))
	for i := range events {
		names[i] = events[i].Name
		ids[i] = events[i].ID
	}

	duration, percent, completed := EstimatePlayback(start, end, item.RuntimeSeconds(), names)

	provenance, err := json.Marshal(models.HistoricalProvenance{
		Source:     provenanceSource,
		EventIDs:   ids,
		EventNames: names,
		HourBucket: c.HourBucket,
	})
	if err != nil {
		return nil, OutcomeMissingRef, fmt.Errorf("failed to encode provenance: %w", err)
	}

	return &models.Session{
		ID:              uuid.New().String(),
		ServerID:        c.ServerID,
		UserID:          user.ID,
		UserName:        user.Name,
		ItemID:          item.ID,
		ItemName:        item.Name,
		StartTime:       start,
		EndTime:         end,
		PlayDuration:    duration,
		PercentComplete: percent,
		Completed:       completed,
		Source:          models.SessionSourceHistorical,
		Provenance:      provenance,
		CreatedAt:       r.now().UTC(),
	}, OutcomeBuilt, nil
}

// Reconstruct builds a session from c and persists it unless an existing
// session for the same user and item starts within DuplicateWindow.
func (r *Reconstructor) Reconstruct(ctx context.Context, c *models.SessionCandidate) (Outcome, *models.Session, error) {
	session, outcome, err := r.Build(ctx, c)
	if err != nil || outcome != OutcomeBuilt {
		return outcome, nil, err
	}

	existing, err := r.store.FindSessionNear(ctx, session.ServerID, session.UserID, session.ItemID, session.StartTime, DuplicateWindow)
	if err != nil {
		return outcome, nil, fmt.Errorf("failed to check for duplicate session: %w", err)
	}
	if existing != nil {
		return OutcomeDuplicate, existing, nil
	}

	if err := r.store.InsertSession(ctx, session); err != nil {
		return outcome, nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return OutcomeBuilt, session, nil
}

// EstimatePlayback derives play duration (seconds), percent complete and the
// completed flag from an event span, the item's runtime (0 if unknown) and
// the event names.
func EstimatePlayback(start, end time.Time, runtimeSeconds int64, names []string) (int64, float64, bool) {
	span := end.Sub(start).Seconds()
	if span < 0 {
		span = 0
	}
	duration := int64(math.Floor(span * playDurationFactor))
	if duration < minPlayDurationSeconds {
		duration = minPlayDurationSeconds
	}

	heuristic := false
	for _, n := range names {
		if IsCompletionEvent(n) {
			heuristic = true
			break
		}
	}

	if runtimeSeconds > 0 {
		percent := math.Min(100, float64(duration)/float64(runtimeSeconds)*100)
		return duration, percent, heuristic || percent > completedThreshold
	}
	if heuristic {
		return duration, fallbackCompletedPercent, true
	}
	return duration, fallbackIncompletePercent, false
}

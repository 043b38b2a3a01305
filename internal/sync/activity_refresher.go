// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/metrics"
	"github.com/tomtom215/catalogmirror/internal/models"
)

// ActivityRefresherConfig bounds how hard the activity refresh leans on the
// server. Backfills run with low concurrency and a long delay.
type ActivityRefresherConfig struct {
	PageSize     int
	Concurrency  int
	RequestDelay time.Duration
	PageTimeout  time.Duration
}

// ActivityRefresherConfigFrom converts the backfill config section.
func ActivityRefresherConfigFrom(cfg *config.BackfillConfig, pageTimeout time.Duration) ActivityRefresherConfig {
	return ActivityRefresherConfig{
		PageSize:     cfg.ActivityPageSize,
		Concurrency:  cfg.ActivityConcurrency,
		RequestDelay: cfg.ActivityRequestDelay,
		PageTimeout:  pageTimeout,
	}
}

// ActivityLogRefresher mirrors the upstream activity log into the store.
type ActivityLogRefresher struct {
	serverID string
	client   CatalogClient
	store    ActivityStore
	cfg      ActivityRefresherConfig
}

// NewActivityLogRefresher creates a refresher for serverID.
func NewActivityLogRefresher(serverID string, client CatalogClient, store ActivityStore, cfg ActivityRefresherConfig) *ActivityLogRefresher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = time.Minute
	}
	return &ActivityLogRefresher{serverID: serverID, client: client, store: store, cfg: cfg}
}

// MapActivityEntry converts one upstream entry. Entries without a usable
// date are rejected.
func MapActivityEntry(serverID string, e *models.RemoteActivityEntry) (models.ActivityEvent, bool) {
	date := parseJellyfinTime(e.Date)
	if date == nil {
		return models.ActivityEvent{}, false
	}
	return models.ActivityEvent{
		ID:            e.ID,
		ServerID:      serverID,
		Name:          e.Name,
		Type:          e.Type,
		ShortOverview: e.ShortOverview,
		Severity:      e.Severity,
		UserID:        normalizeGUID(e.UserID),
		ItemID:        e.ItemID,
		Date:          *date,
	}, true
}

// normalizeGUID returns a user GUID in compact lowercase form, so dashed and
// undashed spellings compare equal. The all-zero GUID the activity log uses
// for system events becomes the empty string.
func normalizeGUID(id string) string {
	compact := strings.ToLower(strings.ReplaceAll(id, "-", ""))
	if strings.Trim(compact, "0") == "" {
		return ""
	}
	return compact
}

// Refresh mirrors every log entry at or after since (all entries when nil)
// and returns the number of newly stored rows. The first page is fetched
// alone to learn the total; remaining pages fan out up to Concurrency, each
// request preceded by RequestDelay.
func (r *ActivityLogRefresher) Refresh(ctx context.Context, since *time.Time) (int, error) {
	log := logging.Ctx(ctx).With().Str("component", "activity-refresh").Logger()
	start := time.Now()

	var stored atomic.Int64
	first, err := r.fetchAndStore(ctx, 0, since, &stored)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for offset := r.cfg.PageSize; offset < first.TotalCount; offset += r.cfg.PageSize {
		g.Go(func() error {
			if err := sleepCtx(gctx, r.cfg.RequestDelay); err != nil {
				return err
			}
			_, err := r.fetchAndStore(gctx, offset, since, &stored)
			return err
		})
	}
	err = g.Wait()

	n := int(stored.Load())
	metrics.ActivityRefreshEntries.WithLabelValues(r.serverID).Add(float64(n))
	if err != nil {
		log.Error().Err(err).Int("stored", n).Msg("Activity log refresh failed")
		return n, err
	}
	log.Info().Int("total", first.TotalCount).Int("stored", n).Dur("duration", time.Since(start)).Msg("Activity log refreshed")
	return n, nil
}

func (r *ActivityLogRefresher) fetchAndStore(ctx context.Context, offset int, since *time.Time, stored *atomic.Int64) (*models.ActivityPage, error) {
	pageCtx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
	defer cancel()

	page, err := r.client.FetchActivityLog(pageCtx, offset, r.cfg.PageSize, since)
	if err != nil {
		return nil, fmt.Errorf("activity log page at offset %d: %w", offset, err)
	}

	events := make([]models.ActivityEvent, 0, len(page.Items))
	for i := range page.Items {
		if e, ok := MapActivityEntry(r.serverID, &page.Items[i]); ok {
			events = append(events, e)
		}
	}
	n, err := r.store.InsertActivityEvents(pageCtx, events)
	if err != nil {
		return nil, fmt.Errorf("storing activity page at offset %d: %w", offset, err)
	}
	stored.Add(int64(n))
	return page, nil
}

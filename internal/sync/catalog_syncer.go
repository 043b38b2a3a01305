// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
catalog_syncer.go - Paginated catalog ingestion for one server

Full pass:
 1. enumerate libraries (failure here is fatal: status=error)
 2. record them and flag stored libraries that disappeared (never deleted)
 3. page through each library with bounded cross-library parallelism
 4. per page: batch-lookup stored rows, then classify and apply each item
    with bounded item parallelism

Each item ends in exactly one of: insert (batched per page, on-conflict
update), in-place update, identity migration, or skip-unchanged.

Failure isolation: an item error is counted and skipped; a page fetch error
ends that library's pagination only. Pages of one library are fetched in
strictly increasing offset order with a delay in between.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/metrics"
	"github.com/tomtom215/catalogmirror/internal/models"
)

// maxResultErrors caps the error strings kept in one result.
const maxResultErrors = 100

// SyncerConfig holds the catalog syncer's knobs.
type SyncerConfig struct {
	PageSize           int
	LibraryConcurrency int
	ItemConcurrency    int
	PageDelay          time.Duration
	PageTimeout        time.Duration
	ItemTimeout        time.Duration
	MatchThreshold     int
}

// SyncerConfigFrom converts the sync config section.
func SyncerConfigFrom(cfg *config.SyncConfig) SyncerConfig {
	return SyncerConfig{
		PageSize:           cfg.PageSize,
		LibraryConcurrency: cfg.LibraryConcurrency,
		ItemConcurrency:    cfg.ItemConcurrency,
		PageDelay:          cfg.PageDelay,
		PageTimeout:        cfg.PageTimeout,
		ItemTimeout:        cfg.ItemTimeout,
		MatchThreshold:     DefaultMatchThreshold,
	}
}

func (c *SyncerConfig) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.LibraryConcurrency <= 0 {
		c.LibraryConcurrency = 2
	}
	if c.ItemConcurrency <= 0 {
		c.ItemConcurrency = 10
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = time.Minute
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 30 * time.Second
	}
}

// CatalogSyncer mirrors the catalog of one server.
type CatalogSyncer struct {
	serverID string
	client   CatalogClient
	store    CatalogStore
	resolver *IdentityResolver
	cfg      SyncerConfig
}

// NewCatalogSyncer creates a syncer for serverID.
func NewCatalogSyncer(serverID string, client CatalogClient, store CatalogStore, cfg SyncerConfig) *CatalogSyncer {
	cfg.applyDefaults()
	return &CatalogSyncer{
		serverID: serverID,
		client:   client,
		store:    store,
		resolver: NewIdentityResolver(cfg.MatchThreshold),
		cfg:      cfg,
	}
}

// syncTally accumulates counts and errors from concurrent workers.
type syncTally struct {
	mu       sync.Mutex
	serverID string
	counts   models.SyncCounts
	errors   []string
	dropped  int
}

func (t *syncTally) record(outcome string) {
	t.mu.Lock()
	switch outcome {
	case metrics.OutcomeInserted:
		t.counts.ItemsInserted++
	case metrics.OutcomeUpdated:
		t.counts.ItemsUpdated++
	case metrics.OutcomeUnchanged:
		t.counts.ItemsUnchanged++
	case metrics.OutcomeMigrated:
		t.counts.ItemsMigrated++
	case metrics.OutcomeError:
		t.counts.ItemErrors++
	}
	t.mu.Unlock()
	metrics.RecordCatalogItem(t.serverID, outcome)
}

func (t *syncTally) processed(n int) {
	t.mu.Lock()
	t.counts.ItemsProcessed += n
	t.mu.Unlock()
}

func (t *syncTally) libraryDone() {
	t.mu.Lock()
	t.counts.LibrariesProcessed++
	t.mu.Unlock()
}

func (t *syncTally) fail(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.errors) >= maxResultErrors {
		t.dropped++
		return
	}
	t.errors = append(t.errors, fmt.Sprintf(format, args...))
}

func (t *syncTally) snapshot() (models.SyncCounts, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	errs := append([]string(nil), t.errors...)
	if t.dropped > 0 {
		errs = append(errs, fmt.Sprintf("... and %d more errors", t.dropped))
	}
	return t.counts, errs
}

// resultStatus applies the success/partial/error rule: no errors is success;
// errors with any progress is partial; errors with none is error.
func resultStatus(counts models.SyncCounts, errs []string) models.SyncStatus {
	if len(errs) == 0 {
		return models.SyncStatusSuccess
	}
	if counts.ItemsProcessed > 0 || counts.LibrariesProcessed > 0 {
		return models.SyncStatusPartial
	}
	return models.SyncStatusError
}

func (s *CatalogSyncer) begin(ctx context.Context, mode models.SyncMode) (context.Context, *models.SyncResult, *syncTally) {
	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	ctx = logging.ContextWithServerID(ctx, s.serverID)
	result := &models.SyncResult{
		ID:        uuid.New().String(),
		ServerID:  s.serverID,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
	logging.Ctx(ctx).Info().Str("mode", string(mode)).Msg("Catalog sync started")
	return ctx, result, &syncTally{serverID: s.serverID}
}

// finish seals the result. A non-nil fatal error forces status=error.
func (s *CatalogSyncer) finish(ctx context.Context, result *models.SyncResult, tally *syncTally, fatal error) *models.SyncResult {
	result.Counts, result.Errors = tally.snapshot()
	result.FinishedAt = time.Now().UTC()
	if fatal != nil {
		result.Errors = append([]string{fatal.Error()}, result.Errors...)
		result.Status = models.SyncStatusError
	} else {
		result.Status = resultStatus(result.Counts, result.Errors)
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}

	metrics.RecordCatalogSync(s.serverID, string(result.Mode), string(result.Status), result.Duration())

	level := zerolog.InfoLevel
	if result.Status != models.SyncStatusSuccess {
		level = zerolog.WarnLevel
	}
	logging.Ctx(ctx).WithLevel(level).Str("mode", string(result.Mode)).
		Str("status", string(result.Status)).
		Int("libraries", result.Counts.LibrariesProcessed).
		Int("processed", result.Counts.ItemsProcessed).
		Int("inserted", result.Counts.ItemsInserted).
		Int("updated", result.Counts.ItemsUpdated).
		Int("unchanged", result.Counts.ItemsUnchanged).
		Int("migrated", result.Counts.ItemsMigrated).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration()).
		Msg("Catalog sync finished")
	return result
}

// Sync runs a full paginated pass over every library of the server.
func (s *CatalogSyncer) Sync(ctx context.Context) *models.SyncResult {
	ctx, result, tally := s.begin(ctx, models.SyncModeFull)

	libs, err := s.refreshLibraries(ctx, tally)
	if err != nil {
		return s.finish(ctx, result, tally, err)
	}

	ids := make([]string, 0, len(libs))
	for _, lib := range libs {
		ids = append(ids, lib.ID)
	}
	s.forEachLibrary(ctx, ids, tally, s.syncLibraryPages)
	return s.finish(ctx, result, tally, nil)
}

// SyncLibraries runs a full paginated pass over the given libraries only.
func (s *CatalogSyncer) SyncLibraries(ctx context.Context, libraryIDs []string) *models.SyncResult {
	ctx, result, tally := s.begin(ctx, models.SyncModeFull)
	s.forEachLibrary(ctx, libraryIDs, tally, s.syncLibraryPages)
	return s.finish(ctx, result, tally, nil)
}

// SyncRecentlyAdded refreshes the newest limit items of every library without
// paginating, diffing every field instead of trusting the version tag.
func (s *CatalogSyncer) SyncRecentlyAdded(ctx context.Context, limit int) *models.SyncResult {
	ctx, result, tally := s.begin(ctx, models.SyncModeRecent)

	libs, err := s.client.FetchLibraries(ctx)
	if err != nil {
		return s.finish(ctx, result, tally, fmt.Errorf("failed to enumerate libraries: %w", err))
	}
	if len(libs) == 0 {
		return s.finish(ctx, result, tally, ErrNoLibraries)
	}

	ids := make([]string, 0, len(libs))
	for _, lib := range libs {
		ids = append(ids, lib.ID)
	}
	s.forEachLibrary(ctx, ids, tally, func(ctx context.Context, libraryID string, tally *syncTally) {
		s.syncLibraryRecent(ctx, libraryID, limit, tally)
	})
	return s.finish(ctx, result, tally, nil)
}

// refreshLibraries enumerates remote libraries and updates library bookkeeping.
func (s *CatalogSyncer) refreshLibraries(ctx context.Context, tally *syncTally) ([]models.RemoteLibrary, error) {
	libs, err := s.client.FetchLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate libraries: %w", err)
	}
	if len(libs) == 0 {
		return nil, ErrNoLibraries
	}

	if err := s.store.UpsertLibraries(ctx, s.serverID, libs); err != nil {
		tally.fail("failed to record libraries: %v", err)
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to record libraries")
		return libs, nil
	}

	present := make([]string, 0, len(libs))
	for _, lib := range libs {
		present = append(present, lib.ID)
	}
	removed, err := s.store.MarkLibrariesRemoved(ctx, s.serverID, present)
	if err != nil {
		tally.fail("failed to flag removed libraries: %v", err)
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to flag removed libraries")
	}
	for _, lib := range removed {
		logging.Ctx(ctx).Warn().
			Str("library_id", lib.ID).
			Str("library_name", lib.Name).
			Msg("Library no longer present upstream; keeping local data")
	}
	return libs, nil
}

func (s *CatalogSyncer) forEachLibrary(ctx context.Context, ids []string, tally *syncTally, fn func(context.Context, string, *syncTally)) {
	var g errgroup.Group
	g.SetLimit(s.cfg.LibraryConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			fn(ctx, id, tally)
			return nil
		})
	}
	_ = g.Wait()
}

// syncLibraryPages pages through one library until the reported total is
// reached. Any page error ends this library's pass.
func (s *CatalogSyncer) syncLibraryPages(ctx context.Context, libraryID string, tally *syncTally) {
	log := logging.Ctx(ctx).With().Str("library_id", libraryID).Logger()
	pool := newCandidatePool(s.store, s.serverID, libraryID)

	offset := 0
	for page := 1; ; page++ {
		pageCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
		resp, err := s.client.FetchItemsPage(pageCtx, libraryID, offset, s.cfg.PageSize)
		cancel()
		if err != nil {
			metrics.CatalogSyncPageErrors.WithLabelValues(s.serverID).Inc()
			tally.fail("library %s: page %d fetch failed: %v", libraryID, page, err)
			log.Error().Err(err).Int("page", page).Int("offset", offset).Msg("Page fetch failed; skipping rest of library")
			return
		}

		if err := s.processItems(ctx, libraryID, resp.Items, pool, false, tally); err != nil {
			tally.fail("library %s: page %d: %v", libraryID, page, err)
			log.Error().Err(err).Int("page", page).Msg("Page processing failed; skipping rest of library")
			return
		}

		offset += len(resp.Items)
		log.Debug().Int("page", page).Int("offset", offset).Int("total", resp.TotalCount).Msg("Page synced")
		if len(resp.Items) == 0 || offset >= resp.TotalCount {
			break
		}

		if err := sleepCtx(ctx, s.cfg.PageDelay); err != nil {
			tally.fail("library %s: cancelled: %v", libraryID, err)
			return
		}
	}

	tally.libraryDone()
}

func (s *CatalogSyncer) syncLibraryRecent(ctx context.Context, libraryID string, limit int, tally *syncTally) {
	pageCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	items, err := s.client.FetchRecentItems(pageCtx, libraryID, limit)
	cancel()
	if err != nil {
		metrics.CatalogSyncPageErrors.WithLabelValues(s.serverID).Inc()
		tally.fail("library %s: recent items fetch failed: %v", libraryID, err)
		logging.Ctx(ctx).Error().Err(err).Str("library_id", libraryID).Msg("Recent items fetch failed")
		return
	}

	pool := newCandidatePool(s.store, s.serverID, libraryID)
	if err := s.processItems(ctx, libraryID, items, pool, true, tally); err != nil {
		tally.fail("library %s: recent items: %v", libraryID, err)
		logging.Ctx(ctx).Error().Err(err).Str("library_id", libraryID).Msg("Recent items processing failed")
		return
	}
	tally.libraryDone()
}

// processItems applies one batch of raw items. The returned error is a
// batch-level failure (stored-row lookup); item failures are only tallied.
func (s *CatalogSyncer) processItems(ctx context.Context, libraryID string, raws []json.RawMessage, pool *candidatePool, thorough bool, tally *syncTally) error {
	if len(raws) == 0 {
		return nil
	}
	tally.processed(len(raws))

	items := make([]*models.CatalogItem, 0, len(raws))
	ids := make([]string, 0, len(raws))
	for i, raw := range raws {
		item, err := MapRemoteItem(s.serverID, libraryID, raw)
		if err != nil {
			tally.record(metrics.OutcomeError)
			tally.fail("library %s: item %d: %v", libraryID, i, err)
			logging.Ctx(ctx).Warn().Err(err).Str("library_id", libraryID).Msg("Skipping malformed item")
			continue
		}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if len(items) == 0 {
		return nil
	}

	stored, err := s.store.GetCatalogItems(ctx, s.serverID, ids)
	if err != nil {
		return fmt.Errorf("stored item lookup failed: %w", err)
	}
	pool.markSeen(ids)

	var (
		pendingMu sync.Mutex
		pending   []*models.CatalogItem
		g         errgroup.Group
	)
	g.SetLimit(s.cfg.ItemConcurrency)
	for _, item := range items {
		g.Go(func() error {
			if insert := s.applyItem(ctx, item, stored[item.ID], pool, thorough, tally); insert {
				pendingMu.Lock()
				pending = append(pending, item)
				pendingMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(pending) == 0 {
		return nil
	}
	if err := s.store.UpsertCatalogItems(ctx, pending); err != nil {
		for range pending {
			tally.record(metrics.OutcomeError)
		}
		tally.fail("library %s: batch insert of %d items failed: %v", libraryID, len(pending), err)
		logging.Ctx(ctx).Warn().Err(err).Str("library_id", libraryID).Int("items", len(pending)).Msg("Batch insert failed")
		return nil
	}
	for range pending {
		tally.record(metrics.OutcomeInserted)
	}
	return nil
}

// applyItem classifies one item and performs its update or migration.
// It returns true when the item is genuinely new and should be inserted.
func (s *CatalogSyncer) applyItem(ctx context.Context, item, stored *models.CatalogItem, pool *candidatePool, thorough bool, tally *syncTally) bool {
	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	kind := Classify(item, stored)
	if thorough {
		kind = ClassifyThorough(item, stored)
	}

	switch kind {
	case ChangeUnchanged:
		tally.record(metrics.OutcomeUnchanged)
		return false

	case ChangeUpdated:
		if err := s.store.UpdateCatalogItem(itemCtx, item); err != nil {
			tally.record(metrics.OutcomeError)
			tally.fail("item %s: update failed: %v", item.ID, err)
			logging.Ctx(ctx).Warn().Err(err).Str("item_id", item.ID).Msg("Item update failed")
			return false
		}
		tally.record(metrics.OutcomeUpdated)
		return false
	}

	match, confidence, err := pool.claim(itemCtx, s.resolver, item)
	if err != nil {
		tally.record(metrics.OutcomeError)
		tally.fail("item %s: identity lookup failed: %v", item.ID, err)
		logging.Ctx(ctx).Warn().Err(err).Str("item_id", item.ID).Msg("Identity candidate lookup failed")
		return false
	}
	if match == nil {
		return true
	}

	moved, err := s.store.MigrateItemIdentity(itemCtx, match.ID, item)
	metrics.RecordIdentityMigration(confidence, err == nil)
	if err != nil {
		pool.release(match.ID)
		tally.record(metrics.OutcomeError)
		tally.fail("item %s: identity migration from %s rolled back: %v", item.ID, match.ID, err)
		logging.Ctx(ctx).Warn().Err(err).
			Str("item_id", item.ID).Str("old_item_id", match.ID).Int("confidence", confidence).
			Msg("Identity migration rolled back")
		return false
	}

	tally.record(metrics.OutcomeMigrated)
	logging.Ctx(ctx).Info().
		Str("item_id", item.ID).Str("old_item_id", match.ID).Str("name", item.Name).
		Int("confidence", confidence).Int64("sessions_moved", moved).
		Msg("Migrated item identity")
	return false
}

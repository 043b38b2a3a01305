// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
manager.go - Sync Manager

The Manager owns one client stack per configured media server and is the
single entry point used by the scheduler, the ops HTTP endpoint and the CLI.

Per server it holds:
  - CatalogClient: JellyfinClient wrapped by JellyfinCircuitBreakerClient
  - CatalogSyncer: full, single-library and recently-added passes
  - UserRefresher and ActivityLogRefresher (conservative settings) for backfill
  - syncMu / backfillMu: a second pass of the same kind for the same server
    is rejected with ErrSyncInProgress / ErrBackfillInProgress

Library ownership (library id -> server id) is remembered in a TTL cache that
is invalidated for a server at the start of each of its full passes.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/catalogmirror/internal/backfill"
	"github.com/tomtom215/catalogmirror/internal/cache"
	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/database"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/models"
)

var _ Store = (*database.DB)(nil)

// LibraryCache maps library id to owning server id.
type LibraryCache = cache.Cache[string, string]

// NewLibraryCache creates the library ownership cache.
func NewLibraryCache(ttl time.Duration) *LibraryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return cache.New[string, string]("library_server", ttl)
}

// breakerReporter is implemented by clients that expose circuit state.
type breakerReporter interface {
	Name() string
	StateName() string
}

// serverHandle bundles everything the Manager keeps per server.
type serverHandle struct {
	id       string
	client   CatalogClient
	syncer   *CatalogSyncer
	users    *UserRefresher
	activity *ActivityLogRefresher
	driver   backfill.DriverConfig

	syncMu     sync.Mutex
	backfillMu sync.Mutex
}

// ServerStatus is a point-in-time view of one server for the ops endpoint.
type ServerStatus struct {
	ServerID       string                       `json:"server_id"`
	CircuitBreaker string                       `json:"circuit_breaker,omitempty"`
	LastSync       *models.SyncResult           `json:"last_sync,omitempty"`
	LastRecent     *models.SyncResult           `json:"last_recent,omitempty"`
	LastBackfill   *models.HistoricalSyncResult `json:"last_backfill,omitempty"`
}

// Manager coordinates catalog syncs and historical backfills across servers.
type Manager struct {
	store     Store
	cfg       *config.Config
	libraries *LibraryCache
	servers   map[string]*serverHandle
	order     []string

	mu           sync.RWMutex
	lastSync     map[string]*models.SyncResult
	lastRecent   map[string]*models.SyncResult
	lastBackfill map[string]*models.HistoricalSyncResult
}

// NewManager creates a Manager with a circuit-breaker protected REST client
// for every configured server.
func NewManager(cfg *config.Config, store Store, libraries *LibraryCache) *Manager {
	servers := cfg.MediaServers()
	clients := make(map[string]CatalogClient, len(servers))
	for i := range servers {
		s := servers[i]
		clients[s.ServerID] = NewJellyfinCircuitBreakerClient(s.ServerID, NewJellyfinClient(&s))
	}
	return NewManagerWithClients(cfg, store, libraries, clients)
}

// NewManagerWithClients creates a Manager over caller-supplied clients keyed
// by server id. Servers without a client are skipped.
func NewManagerWithClients(cfg *config.Config, store Store, libraries *LibraryCache, clients map[string]CatalogClient) *Manager {
	if libraries == nil {
		libraries = NewLibraryCache(cfg.Sync.LibraryCacheTTL)
	}
	m := &Manager{
		store:        store,
		cfg:          cfg,
		libraries:    libraries,
		servers:      make(map[string]*serverHandle),
		lastSync:     make(map[string]*models.SyncResult),
		lastRecent:   make(map[string]*models.SyncResult),
		lastBackfill: make(map[string]*models.HistoricalSyncResult),
	}

	syncerCfg := SyncerConfigFrom(&cfg.Sync)
	activityCfg := ActivityRefresherConfigFrom(&cfg.Backfill, cfg.Sync.PageTimeout)

	for _, s := range cfg.MediaServers() {
		client, ok := clients[s.ServerID]
		if !ok {
			continue
		}
		m.servers[s.ServerID] = &serverHandle{
			id:       s.ServerID,
			client:   client,
			syncer:   NewCatalogSyncer(s.ServerID, client, store, syncerCfg),
			users:    NewUserRefresher(s.ServerID, client, store),
			activity: NewActivityLogRefresher(s.ServerID, client, store, activityCfg),
			driver:   backfill.DriverConfigFrom(&cfg.Backfill),
		}
		m.order = append(m.order, s.ServerID)
	}
	return m
}

// Servers returns the managed server ids in configuration order.
func (m *Manager) Servers() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Libraries exposes the library ownership cache.
func (m *Manager) Libraries() *LibraryCache {
	return m.libraries
}

func (m *Manager) server(serverID string) (*serverHandle, error) {
	h, ok := m.servers[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}
	return h, nil
}

// Ping checks connectivity to every server and returns the first failure.
func (m *Manager) Ping(ctx context.Context) error {
	for _, id := range m.order {
		if err := m.servers[id].client.Ping(ctx); err != nil {
			return fmt.Errorf("server %s: %w", id, err)
		}
	}
	return nil
}

// SyncAll runs a full pass for every server in turn. Servers whose pass is
// already running are reported with an error result.
func (m *Manager) SyncAll(ctx context.Context) []*models.SyncResult {
	results := make([]*models.SyncResult, 0, len(m.order))
	for _, id := range m.order {
		result, err := m.SyncServer(ctx, id)
		if err != nil {
			result = rejectedResult(id, models.SyncModeFull, err)
		}
		results = append(results, result)
	}
	return results
}

// SyncServer runs a full pass for one server.
func (m *Manager) SyncServer(ctx context.Context, serverID string) (*models.SyncResult, error) {
	h, err := m.server(serverID)
	if err != nil {
		return nil, err
	}
	if !h.syncMu.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, serverID)
	}
	defer h.syncMu.Unlock()

	return m.runFull(ctx, h), nil
}

// StartSync launches a full pass for one server in the background and
// returns once the pass has been admitted. Unknown servers and overlapping
// passes are rejected immediately.
func (m *Manager) StartSync(ctx context.Context, serverID string) error {
	h, err := m.server(serverID)
	if err != nil {
		return err
	}
	if !h.syncMu.TryLock() {
		return fmt.Errorf("%w: %s", ErrSyncInProgress, serverID)
	}
	go func() {
		defer h.syncMu.Unlock()
		m.runFull(ctx, h)
	}()
	return nil
}

// runFull runs a full pass; the caller holds h.syncMu.
func (m *Manager) runFull(ctx context.Context, h *serverHandle) *models.SyncResult {
	invalidated := m.libraries.DeleteFunc(func(_, owner string) bool { return owner == h.id })
	logging.Debug().Str("server_id", h.id).Int("entries", invalidated).Msg("Library cache invalidated")

	result := h.syncer.Sync(ctx)
	m.record(ctx, result)
	return result
}

// SyncLibrary runs a full pass over a single library, resolving its server
// through the library cache.
func (m *Manager) SyncLibrary(ctx context.Context, libraryID string) (*models.SyncResult, error) {
	serverID, err := m.resolveLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	h, err := m.server(serverID)
	if err != nil {
		return nil, err
	}
	if !h.syncMu.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrSyncInProgress, serverID)
	}
	defer h.syncMu.Unlock()

	result := h.syncer.SyncLibraries(ctx, []string{libraryID})
	m.record(ctx, result)
	return result, nil
}

func (m *Manager) resolveLibrary(ctx context.Context, libraryID string) (string, error) {
	if serverID, ok := m.libraries.Get(libraryID); ok {
		return serverID, nil
	}
	lib, err := m.store.FindLibrary(ctx, libraryID)
	if errors.Is(err, database.ErrLibraryNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownLibrary, libraryID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve library %s: %w", libraryID, err)
	}
	if lib.RemovedAt != nil {
		return "", fmt.Errorf("%w: %s (removed upstream)", ErrUnknownLibrary, libraryID)
	}
	m.libraries.Set(libraryID, lib.ServerID)
	return lib.ServerID, nil
}

// SyncRecentlyAdded refreshes the newest items of every library on every
// server. limit <= 0 uses the configured recent_limit.
func (m *Manager) SyncRecentlyAdded(ctx context.Context, limit int) []*models.SyncResult {
	if limit <= 0 {
		limit = m.cfg.Sync.RecentLimit
	}
	results := make([]*models.SyncResult, 0, len(m.order))
	for _, id := range m.order {
		h := m.servers[id]
		if !h.syncMu.TryLock() {
			results = append(results, rejectedResult(id, models.SyncModeRecent, fmt.Errorf("%w: %s", ErrSyncInProgress, id)))
			continue
		}
		result := h.syncer.SyncRecentlyAdded(ctx, limit)
		h.syncMu.Unlock()
		m.record(ctx, result)
		results = append(results, result)
	}
	return results
}

// Backfill reconstructs historical sessions for one server over [from, to).
func (m *Manager) Backfill(ctx context.Context, serverID string, from, to time.Time) (*models.HistoricalSyncResult, error) {
	h, err := m.server(serverID)
	if err != nil {
		return nil, err
	}
	if !h.backfillMu.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrBackfillInProgress, serverID)
	}
	defer h.backfillMu.Unlock()

	return m.runBackfill(ctx, h, from, to)
}

// StartBackfill launches Backfill in the background. Unknown servers,
// invalid ranges and overlapping backfills are rejected immediately.
func (m *Manager) StartBackfill(ctx context.Context, serverID string, from, to time.Time) error {
	h, err := m.server(serverID)
	if err != nil {
		return err
	}
	if !from.Before(to) {
		return fmt.Errorf("%w: from %s is not before to %s", backfill.ErrInvalidRange,
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	if !h.backfillMu.TryLock() {
		return fmt.Errorf("%w: %s", ErrBackfillInProgress, serverID)
	}
	go func() {
		defer h.backfillMu.Unlock()
		if _, err := m.runBackfill(ctx, h, from, to); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("server_id", serverID).Msg("Historical backfill failed")
		}
	}()
	return nil
}

// runBackfill runs the driver; the caller holds h.backfillMu.
func (m *Manager) runBackfill(ctx context.Context, h *serverHandle, from, to time.Time) (*models.HistoricalSyncResult, error) {
	driver := backfill.NewDriver(h.id, m.store, h.users, h.activity, h.driver)
	result, err := driver.Run(ctx, from, to)
	if result != nil {
		m.mu.Lock()
		m.lastBackfill[h.id] = result
		m.mu.Unlock()
	}
	return result, err
}

// BackfillWindow returns the configured days_back window ending now.
func (m *Manager) BackfillWindow() (from, to time.Time) {
	to = time.Now().UTC()
	return to.AddDate(0, 0, -m.cfg.Backfill.DaysBack), to
}

// BackfillAll runs Backfill for every server over the configured days_back
// window ending now.
func (m *Manager) BackfillAll(ctx context.Context) []*models.HistoricalSyncResult {
	from, to := m.BackfillWindow()
	results := make([]*models.HistoricalSyncResult, 0, len(m.order))
	for _, id := range m.order {
		result, err := m.Backfill(ctx, id, from, to)
		if err != nil {
			logging.Error().Err(err).Str("server_id", id).Msg("Historical backfill failed")
		}
		if result != nil {
			results = append(results, result)
		}
	}
	return results
}

// LastResults returns the most recent full-sync result per server.
func (m *Manager) LastResults() map[string]*models.SyncResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*models.SyncResult, len(m.lastSync))
	for k, v := range m.lastSync {
		out[k] = v
	}
	return out
}

// Status returns one entry per server, sorted by server id.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServerStatus, 0, len(m.servers))
	for id, h := range m.servers {
		st := ServerStatus{
			ServerID:     id,
			LastSync:     m.lastSync[id],
			LastRecent:   m.lastRecent[id],
			LastBackfill: m.lastBackfill[id],
		}
		if br, ok := h.client.(breakerReporter); ok {
			st.CircuitBreaker = br.StateName()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// record keeps the result in memory and persists it to sync_runs.
func (m *Manager) record(ctx context.Context, result *models.SyncResult) {
	m.mu.Lock()
	if result.Mode == models.SyncModeRecent {
		m.lastRecent[result.ServerID] = result
	} else {
		m.lastSync[result.ServerID] = result
	}
	m.mu.Unlock()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := m.store.InsertSyncRun(persistCtx, result); err != nil {
		logging.Error().Err(err).Str("server_id", result.ServerID).Str("run_id", result.ID).Msg("Failed to persist sync run")
	}
}

// rejectedResult describes a pass that never started.
func rejectedResult(serverID string, mode models.SyncMode, err error) *models.SyncResult {
	now := time.Now().UTC()
	return &models.SyncResult{
		ServerID:   serverID,
		Mode:       mode,
		Status:     models.SyncStatusError,
		Errors:     []string{err.Error()},
		StartedAt:  now,
		FinishedAt: now,
	}
}

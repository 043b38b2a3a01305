// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/catalogmirror/internal/database"
	"github.com/tomtom215/catalogmirror/internal/models"
)

var errUpstream = errors.New("upstream unavailable")

// remoteItem builds the raw JSON of an upstream item.
type remoteItem struct {
	ID          string            `json:"Id"`
	Name        string            `json:"Name"`
	Type        string            `json:"Type"`
	Path        string            `json:"Path,omitempty"`
	Etag        string            `json:"Etag,omitempty"`
	Overview    string            `json:"Overview,omitempty"`
	ProviderIDs map[string]string `json:"ProviderIds,omitempty"`
	Year        *int              `json:"ProductionYear,omitempty"`
}

func (r remoteItem) raw() json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return b
}

func movie(id, name, path, etag string) remoteItem {
	return remoteItem{
		ID:          id,
		Name:        name,
		Type:        models.ItemTypeMovie,
		Path:        path,
		Etag:        etag,
		ProviderIDs: map[string]string{"Tmdb": "tmdb-" + name},
	}
}

// fakeClient serves libraries and items from memory.
type fakeClient struct {
	mu         sync.Mutex
	libraries  []models.RemoteLibrary
	items      map[string][]remoteItem
	failOffset map[string]int // library -> offset whose fetch fails
	libErr     error
	users      []models.RemoteUser
	activity   []models.RemoteActivityEntry
	pageCalls  map[string][]int
}

var _ CatalogClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		items:      make(map[string][]remoteItem),
		failOffset: make(map[string]int),
		pageCalls:  make(map[string][]int),
	}
}

func (f *fakeClient) addLibrary(id string, items ...remoteItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.libraries = append(f.libraries, models.RemoteLibrary{ID: id, Name: "Library " + id, CollectionType: "movies"})
	f.items[id] = items
}

func (f *fakeClient) setItems(libraryID string, items ...remoteItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[libraryID] = items
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) FetchLibraries(context.Context) ([]models.RemoteLibrary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.libErr != nil {
		return nil, f.libErr
	}
	return append([]models.RemoteLibrary(nil), f.libraries...), nil
}

func (f *fakeClient) FetchItemsPage(_ context.Context, libraryID string, offset, limit int) (*models.ItemsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls[libraryID] = append(f.pageCalls[libraryID], offset)
	if fail, ok := f.failOffset[libraryID]; ok && fail == offset {
		return nil, errUpstream
	}
	all := f.items[libraryID]
	page := &models.ItemsPage{TotalCount: len(all)}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		page.Items = append(page.Items, all[i].raw())
	}
	return page, nil
}

func (f *fakeClient) FetchRecentItems(_ context.Context, libraryID string, limit int) ([]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.items[libraryID]
	var out []json.RawMessage
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i].raw())
	}
	return out, nil
}

func (f *fakeClient) FetchUsers(context.Context) ([]models.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RemoteUser(nil), f.users...), nil
}

func (f *fakeClient) FetchActivityLog(_ context.Context, offset, limit int, _ *time.Time) (*models.ActivityPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &models.ActivityPage{TotalCount: len(f.activity)}
	for i := offset; i < len(f.activity) && i < offset+limit; i++ {
		page.Items = append(page.Items, f.activity[i])
	}
	return page, nil
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu           sync.Mutex
	items        map[string]*models.CatalogItem // key: id (single server in tests)
	libraries    map[string]*models.Library
	users        map[string]models.User
	activity     map[int64]models.ActivityEvent
	sessions     []*models.Session
	runs         []*models.SyncResult
	histResults  []*models.HistoricalSyncResult
	inserts      int
	updates      int
	migrateErr   error
	lookupErr    error
	upsertCalls  int
	migrateCalls int
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:     make(map[string]*models.CatalogItem),
		libraries: make(map[string]*models.Library),
		users:     make(map[string]models.User),
		activity:  make(map[int64]models.ActivityEvent),
	}
}

func cloneItem(c *models.CatalogItem) *models.CatalogItem {
	cp := *c
	return &cp
}

func (s *fakeStore) GetCatalogItems(_ context.Context, _ string, ids []string) (map[string]*models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	out := make(map[string]*models.CatalogItem)
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out[id] = cloneItem(item)
		}
	}
	return out, nil
}

func (s *fakeStore) GetCatalogItem(_ context.Context, _, id string) (*models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (s *fakeStore) ListLibraryItems(_ context.Context, _, libraryID string) ([]*models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.CatalogItem
	for _, item := range s.items {
		if item.LibraryID == libraryID {
			out = append(out, cloneItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) UpsertCatalogItems(_ context.Context, items []*models.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	for _, item := range items {
		s.items[item.ID] = cloneItem(item)
		s.inserts++
	}
	return nil
}

func (s *fakeStore) UpdateCatalogItem(_ context.Context, item *models.CatalogItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		return database.ErrItemNotFound
	}
	s.items[item.ID] = cloneItem(item)
	s.updates++
	return nil
}

func (s *fakeStore) MigrateItemIdentity(_ context.Context, oldID string, item *models.CatalogItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrateCalls++
	if s.migrateErr != nil {
		return 0, s.migrateErr
	}
	if _, ok := s.items[oldID]; !ok {
		return 0, database.ErrMigrationSourceMissing
	}
	if _, ok := s.items[item.ID]; ok {
		return 0, database.ErrItemIDConflict
	}
	s.items[item.ID] = cloneItem(item)
	var moved int64
	for _, sess := range s.sessions {
		if sess.ItemID == oldID {
			sess.ItemID = item.ID
			moved++
		}
	}
	delete(s.items, oldID)
	return moved, nil
}

func (s *fakeStore) UpsertLibraries(_ context.Context, serverID string, libs []models.RemoteLibrary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range libs {
		s.libraries[l.ID] = &models.Library{ID: l.ID, ServerID: serverID, Name: l.Name, CollectionType: l.CollectionType}
	}
	return nil
}

func (s *fakeStore) MarkLibrariesRemoved(_ context.Context, serverID string, present []string) ([]models.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[string]bool, len(present))
	for _, id := range present {
		keep[id] = true
	}
	var removed []models.Library
	now := time.Now().UTC()
	for id, lib := range s.libraries {
		if lib.ServerID == serverID && !keep[id] && lib.RemovedAt == nil {
			lib.RemovedAt = &now
			removed = append(removed, *lib)
		}
	}
	return removed, nil
}

func (s *fakeStore) FindLibrary(_ context.Context, libraryID string) (*models.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lib, ok := s.libraries[libraryID]
	if !ok {
		return nil, database.ErrLibraryNotFound
	}
	cp := *lib
	return &cp, nil
}

func (s *fakeStore) UpsertUsers(_ context.Context, users []models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
	}
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, _, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return &u, nil
}

func (s *fakeStore) InsertActivityEvents(_ context.Context, events []models.ActivityEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range events {
		if _, ok := s.activity[e.ID]; ok {
			continue
		}
		s.activity[e.ID] = e
		n++
	}
	return n, nil
}

func (s *fakeStore) ListActivityRange(_ context.Context, serverID string, from, to time.Time, offset, limit int) ([]models.ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.ActivityEvent
	for _, e := range s.activity {
		if e.ServerID == serverID && !e.Date.Before(from) && e.Date.Before(to) {
			rows = append(rows, e)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date.Equal(rows[j].Date) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].Date.Before(rows[j].Date)
	})
	if offset >= len(rows) {
		return nil, nil
	}
	return rows[offset:min(offset+limit, len(rows))], nil
}

func (s *fakeStore) FindSessionNear(_ context.Context, serverID, userID, itemID string, at time.Time, window time.Duration) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ServerID == serverID && sess.UserID == userID && sess.ItemID == itemID &&
			!sess.StartTime.Before(at.Add(-window)) && !sess.StartTime.After(at.Add(window)) {
			return sess, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sess)
	return nil
}

func (s *fakeStore) InsertSyncRun(_ context.Context, r *models.SyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func (s *fakeStore) InsertHistoricalSyncResult(_ context.Context, r *models.HistoricalSyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histResults = append(s.histResults, r)
	return nil
}

func (s *fakeStore) counters() (inserts, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts, s.updates
}

func (s *fakeStore) item(id string) *models.CatalogItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[id]; ok {
		return cloneItem(item)
	}
	return nil
}

// testSyncerConfig keeps tests fast and deterministic.
func testSyncerConfig() SyncerConfig {
	return SyncerConfig{
		PageSize:           2,
		LibraryConcurrency: 2,
		ItemConcurrency:    4,
		PageTimeout:        5 * time.Second,
		ItemTimeout:        5 * time.Second,
	}
}

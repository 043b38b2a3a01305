// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package backfill

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/catalogmirror/internal/database"
	"github.com/tomtom215/catalogmirror/internal/models"
)

// memStore is an in-memory Store.
type memStore struct {
	mu         sync.Mutex
	items      map[string]*models.CatalogItem
	users      map[string]*models.User
	sessions   []*models.Session
	activity   []models.ActivityEvent
	results    []*models.HistoricalSyncResult
	listCalls  int
	listErr    error
	insertErr  error
	lookupErr  error
	listLimits []int
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		items: make(map[string]*models.CatalogItem),
		users: make(map[string]*models.User),
	}
}

func (m *memStore) addItem(id string, runtimeSeconds int64) {
	m.items[id] = &models.CatalogItem{
		ID:           id,
		ServerID:     "srv",
		Name:         "Item " + id,
		Type:         models.ItemTypeMovie,
		RunTimeTicks: runtimeSeconds * models.TicksPerSecond,
	}
}

func (m *memStore) addUser(id string) {
	m.users[id] = &models.User{ID: id, ServerID: "srv", Name: "user-" + id}
}

func (m *memStore) GetCatalogItem(_ context.Context, _, id string) (*models.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	item, ok := m.items[id]
	if !ok {
		return nil, database.ErrItemNotFound
	}
	return item, nil
}

func (m *memStore) GetUser(_ context.Context, _, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return user, nil
}

func (m *memStore) FindSessionNear(_ context.Context, serverID, userID, itemID string, at time.Time, window time.Duration) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ServerID != serverID || s.UserID != userID || s.ItemID != itemID {
			continue
		}
		if !s.StartTime.Before(at.Add(-window)) && !s.StartTime.After(at.Add(window)) {
			return s, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *memStore) ListActivityRange(_ context.Context, serverID string, from, to time.Time, offset, limit int) ([]models.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	m.listLimits = append(m.listLimits, limit)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var rows []models.ActivityEvent
	for _, e := range m.activity {
		if e.ServerID == serverID && !e.Date.Before(from) && e.Date.Before(to) {
			rows = append(rows, e)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date.Equal(rows[j].Date) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].Date.Before(rows[j].Date)
	})
	if offset >= len(rows) {
		return []models.ActivityEvent{}, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (m *memStore) InsertHistoricalSyncResult(_ context.Context, r *models.HistoricalSyncResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

// stubRefresher satisfies both refresher interfaces.
type stubRefresher struct {
	n     int
	err   error
	calls int
	since *time.Time
}

func (s *stubRefresher) Refresh(_ context.Context, since *time.Time) (int, error) {
	s.calls++
	s.since = since
	return s.n, s.err
}

type stubUserRefresher struct {
	err   error
	calls int
}

func (s *stubUserRefresher) Refresh(context.Context) (int, error) {
	s.calls++
	return 0, s.err
}

var errBoom = errors.New("boom")

var baseTime = time.Date(2023, 3, 4, 20, 0, 0, 0, time.UTC)

func event(id int64, user, item, name string, offset time.Duration) models.ActivityEvent {
	return models.ActivityEvent{
		ID:       id,
		ServerID: "srv",
		Name:     name,
		Type:     "VideoPlayback",
		UserID:   user,
		ItemID:   item,
		Date:     baseTime.Add(offset),
	}
}

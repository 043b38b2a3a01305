// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
identity_resolver.go - Detects items recreated upstream under a new id

A server re-scan or provider re-match can delete an item and recreate it with
a fresh id. Treating that as a new item would orphan every session of the old
one, so each unseen id is scored against the stored items of its library:

	exact path                                   +50
	shared (provider, id) pair                   +40
	episodes: same series and S/E ordinals       +30  (season defaults to 1)
	movies: same name                            +10
	        ... and same production year         +10
	        ... and runtime within 5 minutes     +10
	same name and type                           +10

The score is capped at 100. The best candidate at or above the threshold
(40) wins; ties keep the first candidate in library order.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

const (
	// DefaultMatchThreshold is the minimum confidence for an identity match.
	DefaultMatchThreshold = 40

	maxConfidence = 100
	runtimeSlack  = 5 * time.Minute
)

// IdentityResolver scores stored items against a newly seen one.
type IdentityResolver struct {
	threshold int
}

// NewIdentityResolver returns a resolver; threshold <= 0 selects the default.
func NewIdentityResolver(threshold int) *IdentityResolver {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &IdentityResolver{threshold: threshold}
}

// Threshold returns the minimum confidence for a match.
func (r *IdentityResolver) Threshold() int {
	return r.threshold
}

// Score returns the 0-100 confidence that incoming and existing denote the
// same content.
func Score(incoming, existing *models.CatalogItem) int {
	score := 0

	if incoming.Path != "" && incoming.Path == existing.Path {
		score += 50
	}
	if sharesProviderID(incoming.ProviderIDs, existing.ProviderIDs) {
		score += 40
	}

	switch {
	case incoming.Type == models.ItemTypeEpisode && existing.Type == models.ItemTypeEpisode:
		if incoming.SeriesName != "" && incoming.SeriesName == existing.SeriesName &&
			incoming.IndexNumber != nil && existing.IndexNumber != nil &&
			*incoming.IndexNumber == *existing.IndexNumber &&
			seasonOrdinal(incoming) == seasonOrdinal(existing) {
			score += 30
		}
	case incoming.Type == models.ItemTypeMovie && existing.Type == models.ItemTypeMovie:
		if sameName(incoming, existing) {
			score += 10
			if incoming.ProductionYear != nil && existing.ProductionYear != nil &&
				*incoming.ProductionYear == *existing.ProductionYear {
				score += 10
				if runtimesClose(incoming, existing) {
					score += 10
				}
			}
		}
	}

	if sameName(incoming, existing) && incoming.Type == existing.Type {
		score += 10
	}

	return min(score, maxConfidence)
}

func sameName(a, b *models.CatalogItem) bool {
	return a.Name != "" && a.Name == b.Name
}

func seasonOrdinal(c *models.CatalogItem) int {
	if c.ParentIndexNumber == nil {
		return 1
	}
	return *c.ParentIndexNumber
}

func runtimesClose(a, b *models.CatalogItem) bool {
	if a.RunTimeTicks <= 0 || b.RunTimeTicks <= 0 {
		return false
	}
	diff := time.Duration(a.RunTimeTicks-b.RunTimeTicks) * 100 // ticks are 100ns
	if diff < 0 {
		diff = -diff
	}
	return diff <= runtimeSlack
}

// sharesProviderID reports whether both maps carry the same id for at least
// one provider. Provider names compare case-insensitively.
func sharesProviderID(a, b map[string]string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for ka, va := range a {
		if va == "" {
			continue
		}
		for kb, vb := range b {
			if vb == va && strings.EqualFold(ka, kb) {
				return true
			}
		}
	}
	return false
}

// BestMatch returns the highest-scoring candidate at or above the threshold,
// or nil. Candidates with the incoming item's own id are ignored.
func (r *IdentityResolver) BestMatch(incoming *models.CatalogItem, candidates []*models.CatalogItem) (*models.CatalogItem, int) {
	var (
		best      *models.CatalogItem
		bestScore int
	)
	for _, c := range candidates {
		if c.ID == incoming.ID {
			continue
		}
		s := Score(incoming, c)
		if s >= r.threshold && s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// libraryItemLister loads the stored items of one library.
type libraryItemLister interface {
	ListLibraryItems(ctx context.Context, serverID, libraryID string) ([]*models.CatalogItem, error)
}

// candidatePool is the per-library-pass candidate set. It is loaded once,
// excludes ids already seen upstream in this pass, and hands each stored
// item to at most one incoming item so concurrent workers cannot migrate
// the same row twice.
type candidatePool struct {
	mu        sync.Mutex
	serverID  string
	libraryID string
	store     libraryItemLister
	loaded    bool
	items     []*models.CatalogItem
	seen      map[string]struct{}
	claimed   map[string]struct{}
}

func newCandidatePool(store libraryItemLister, serverID, libraryID string) *candidatePool {
	return &candidatePool{
		serverID:  serverID,
		libraryID: libraryID,
		store:     store,
		seen:      make(map[string]struct{}),
		claimed:   make(map[string]struct{}),
	}
}

// markSeen records ids present upstream in this pass.
func (p *candidatePool) markSeen(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.seen[id] = struct{}{}
	}
}

// claim finds and reserves the best match for incoming. The reservation is
// held until release; a committed migration never releases it.
func (p *candidatePool) claim(ctx context.Context, r *IdentityResolver, incoming *models.CatalogItem) (*models.CatalogItem, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		items, err := p.store.ListLibraryItems(ctx, p.serverID, p.libraryID)
		if err != nil {
			return nil, 0, err
		}
		p.items = items
		p.loaded = true
	}

	candidates := make([]*models.CatalogItem, 0, len(p.items))
	for _, c := range p.items {
		if _, ok := p.seen[c.ID]; ok {
			continue
		}
		if _, ok := p.claimed[c.ID]; ok {
			continue
		}
		candidates = append(candidates, c)
	}

	match, score := r.BestMatch(incoming, candidates)
	if match != nil {
		p.claimed[match.ID] = struct{}{}
	}
	return match, score, nil
}

// release returns a claimed candidate to the pool.
func (p *candidatePool) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.claimed, id)
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/catalogmirror/internal/models"
)

var (
	// ErrItemMissingID marks an upstream item without an Id.
	ErrItemMissingID = errors.New("item has no Id")

	// ErrItemMissingType marks an upstream item without a Type.
	ErrItemMissingType = errors.New("item has no Type")
)

// jellyfinTimeLayouts are tried in order. Jellyfin emits 7 fractional digits
// and sometimes omits the zone designator.
var jellyfinTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.0000000Z",
	"2006-01-02T15:04:05.0000000",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseJellyfinTime parses an upstream timestamp as UTC, truncated to the
// microsecond precision of the store. Empty strings, the 0001-01-01 zero
// value and unparseable input all yield nil.
func parseJellyfinTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range jellyfinTimeLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() <= 1 {
			return nil
		}
		t = t.UTC().Truncate(time.Microsecond)
		return &t
	}
	return nil
}

// MapRemoteItem decodes one raw upstream item into a CatalogItem for
// serverID/libraryID. The raw payload is kept verbatim as the snapshot.
func MapRemoteItem(serverID, libraryID string, raw json.RawMessage) (*models.CatalogItem, error) {
	var r models.RemoteItem
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("malformed item payload: %w", err)
	}
	if strings.TrimSpace(r.ID) == "" {
		return nil, ErrItemMissingID
	}
	if strings.TrimSpace(r.Type) == "" {
		return nil, fmt.Errorf("%w (id %s)", ErrItemMissingType, r.ID)
	}

	item := &models.CatalogItem{
		ID:                      r.ID,
		ServerID:                serverID,
		LibraryID:               libraryID,
		Name:                    r.Name,
		OriginalTitle:           r.OriginalTitle,
		SortName:                r.SortName,
		Type:                    r.Type,
		MediaType:               r.MediaType,
		Path:                    r.Path,
		Container:               r.Container,
		VersionTag:              r.Etag,
		ProviderIDs:             r.ProviderIDs,
		SeriesName:              r.SeriesName,
		SeriesID:                r.SeriesID,
		SeasonID:                r.SeasonID,
		SeasonName:              r.SeasonName,
		ParentID:                r.ParentID,
		IndexNumber:             r.IndexNumber,
		ParentIndexNumber:       r.ParentIndexNumber,
		ProductionYear:          r.ProductionYear,
		PremiereDate:            parseJellyfinTime(r.PremiereDate),
		EndDate:                 parseJellyfinTime(r.EndDate),
		DateCreated:             parseJellyfinTime(r.DateCreated),
		CommunityRating:         r.CommunityRating,
		CriticRating:            r.CriticRating,
		OfficialRating:          r.OfficialRating,
		Overview:                r.Overview,
		Taglines:                r.Taglines,
		Genres:                  r.Genres,
		Tags:                    r.Tags,
		Status:                  r.Status,
		IsFolder:                r.IsFolder,
		ChildCount:              r.ChildCount,
		VideoType:               r.VideoType,
		LocationType:            r.LocationType,
		HasSubtitles:            r.HasSubtitles,
		PrimaryImageAspectRatio: r.PrimaryImageAspectRatio,
		BackdropImageTags:       r.BackdropImageTags,
		RawSnapshot:             append(json.RawMessage(nil), raw...),
	}

	if r.RunTimeTicks != nil {
		item.RunTimeTicks = *r.RunTimeTicks
	}
	if r.Width != nil {
		item.Width = *r.Width
	}
	if r.Height != nil {
		item.Height = *r.Height
	}
	if len(r.Studios) > 0 {
		item.Studios = make([]string, 0, len(r.Studios))
		for _, s := range r.Studios {
			if s.Name != "" {
				item.Studios = append(item.Studios, s.Name)
			}
		}
	}

	item.PrimaryImageTag = r.ImageTags["Primary"]
	item.ThumbImageTag = r.ImageTags["Thumb"]
	item.LogoImageTag = r.ImageTags["Logo"]
	item.BannerImageTag = r.ImageTags["Banner"]
	item.ArtImageTag = r.ImageTags["Art"]
	if item.PrimaryImageTag != "" {
		item.PrimaryImageHash = r.ImageBlurHashes["Primary"][item.PrimaryImageTag]
	}

	return item, nil
}

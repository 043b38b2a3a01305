// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
change_detector.go - Classifies a fetched item against its stored record

Classify takes the version-tag fast path: an unchanged, non-empty tag means
the item is unchanged and no field diff is computed. ClassifyThorough (used
by the recently-added refresh) always diffs.

The diff covers a fixed list of tracked fields plus an image check that
compares two nested sub-structures of the raw payloads (BackdropImageTags,
ImageBlurHashes). Those are decoded and compared structurally, so key order
in the JSON never produces a false change.
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"bytes"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/catalogmirror/internal/models"
)

// ChangeKind is the classification of one fetched item.
type ChangeKind int

const (
	ChangeNew ChangeKind = iota
	ChangeUnchanged
	ChangeUpdated
)

// String returns the lowercase name of the kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeUnchanged:
		return "unchanged"
	case ChangeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// trackedField compares one attribute of two items.
type trackedField struct {
	name  string
	equal func(a, b *models.CatalogItem) bool
}

func strField(name string, get func(*models.CatalogItem) string) trackedField {
	return trackedField{name, func(a, b *models.CatalogItem) bool { return get(a) == get(b) }}
}

func intPtrField(name string, get func(*models.CatalogItem) *int) trackedField {
	return trackedField{name, func(a, b *models.CatalogItem) bool { return ptrEqual(get(a), get(b)) }}
}

func floatPtrField(name string, get func(*models.CatalogItem) *float64) trackedField {
	return trackedField{name, func(a, b *models.CatalogItem) bool { return ptrEqual(get(a), get(b)) }}
}

func timeField(name string, get func(*models.CatalogItem) *time.Time) trackedField {
	return trackedField{name, func(a, b *models.CatalogItem) bool {
		x, y := get(a), get(b)
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return x.Equal(*y)
	}}
}

func listField(name string, get func(*models.CatalogItem) []string) trackedField {
	return trackedField{name, func(a, b *models.CatalogItem) bool { return slices.Equal(get(a), get(b)) }}
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// trackedFields is the fixed list of identity, metadata and image fields
// whose change makes an item Updated.
var trackedFields = []trackedField{
	strField("library_id", func(c *models.CatalogItem) string { return c.LibraryID }),
	strField("name", func(c *models.CatalogItem) string { return c.Name }),
	strField("original_title", func(c *models.CatalogItem) string { return c.OriginalTitle }),
	strField("sort_name", func(c *models.CatalogItem) string { return c.SortName }),
	strField("type", func(c *models.CatalogItem) string { return c.Type }),
	strField("media_type", func(c *models.CatalogItem) string { return c.MediaType }),
	strField("path", func(c *models.CatalogItem) string { return c.Path }),
	strField("container", func(c *models.CatalogItem) string { return c.Container }),
	{"provider_ids", func(a, b *models.CatalogItem) bool { return maps.Equal(a.ProviderIDs, b.ProviderIDs) }},
	strField("series_name", func(c *models.CatalogItem) string { return c.SeriesName }),
	strField("series_id", func(c *models.CatalogItem) string { return c.SeriesID }),
	strField("season_id", func(c *models.CatalogItem) string { return c.SeasonID }),
	strField("season_name", func(c *models.CatalogItem) string { return c.SeasonName }),
	strField("parent_id", func(c *models.CatalogItem) string { return c.ParentID }),
	intPtrField("index_number", func(c *models.CatalogItem) *int { return c.IndexNumber }),
	intPtrField("parent_index_number", func(c *models.CatalogItem) *int { return c.ParentIndexNumber }),
	{"run_time_ticks", func(a, b *models.CatalogItem) bool { return a.RunTimeTicks == b.RunTimeTicks }},
	intPtrField("production_year", func(c *models.CatalogItem) *int { return c.ProductionYear }),
	timeField("premiere_date", func(c *models.CatalogItem) *time.Time { return c.PremiereDate }),
	timeField("end_date", func(c *models.CatalogItem) *time.Time { return c.EndDate }),
	timeField("date_created", func(c *models.CatalogItem) *time.Time { return c.DateCreated }),
	floatPtrField("community_rating", func(c *models.CatalogItem) *float64 { return c.CommunityRating }),
	floatPtrField("critic_rating", func(c *models.CatalogItem) *float64 { return c.CriticRating }),
	strField("official_rating", func(c *models.CatalogItem) string { return c.OfficialRating }),
	strField("overview", func(c *models.CatalogItem) string { return c.Overview }),
	listField("taglines", func(c *models.CatalogItem) []string { return c.Taglines }),
	listField("genres", func(c *models.CatalogItem) []string { return c.Genres }),
	listField("studios", func(c *models.CatalogItem) []string { return c.Studios }),
	listField("tags", func(c *models.CatalogItem) []string { return c.Tags }),
	strField("status", func(c *models.CatalogItem) string { return c.Status }),
	{"is_folder", func(a, b *models.CatalogItem) bool { return a.IsFolder == b.IsFolder }},
	intPtrField("child_count", func(c *models.CatalogItem) *int { return c.ChildCount }),
	{"width", func(a, b *models.CatalogItem) bool { return a.Width == b.Width }},
	{"height", func(a, b *models.CatalogItem) bool { return a.Height == b.Height }},
	strField("video_type", func(c *models.CatalogItem) string { return c.VideoType }),
	strField("location_type", func(c *models.CatalogItem) string { return c.LocationType }),
	{"has_subtitles", func(a, b *models.CatalogItem) bool { return a.HasSubtitles == b.HasSubtitles }},
	strField("primary_image_tag", func(c *models.CatalogItem) string { return c.PrimaryImageTag }),
	strField("thumb_image_tag", func(c *models.CatalogItem) string { return c.ThumbImageTag }),
	strField("logo_image_tag", func(c *models.CatalogItem) string { return c.LogoImageTag }),
	strField("banner_image_tag", func(c *models.CatalogItem) string { return c.BannerImageTag }),
	strField("art_image_tag", func(c *models.CatalogItem) string { return c.ArtImageTag }),
	floatPtrField("primary_image_aspect_ratio", func(c *models.CatalogItem) *float64 { return c.PrimaryImageAspectRatio }),
	strField("primary_image_hash", func(c *models.CatalogItem) string { return c.PrimaryImageHash }),
	listField("backdrop_image_tags", func(c *models.CatalogItem) []string { return c.BackdropImageTags }),
}

// rawImageKeys are the raw-payload sub-structures compared by the image check.
var rawImageKeys = []string{"BackdropImageTags", "ImageBlurHashes"}

// Classify decides New/Unchanged/Updated using the version-tag fast path.
// stored may be nil.
func Classify(remote, stored *models.CatalogItem) ChangeKind {
	if stored == nil {
		return ChangeNew
	}
	if remote.VersionTag != "" && remote.VersionTag == stored.VersionTag {
		return ChangeUnchanged
	}
	if len(Diff(remote, stored)) > 0 {
		return ChangeUpdated
	}
	return ChangeUnchanged
}

// ClassifyThorough is Classify without the version-tag fast path.
func ClassifyThorough(remote, stored *models.CatalogItem) ChangeKind {
	if stored == nil {
		return ChangeNew
	}
	if len(Diff(remote, stored)) > 0 {
		return ChangeUpdated
	}
	return ChangeUnchanged
}

// Diff returns the names of tracked fields that differ between a and b,
// followed by any raw image sub-structure that differs.
func Diff(a, b *models.CatalogItem) []string {
	var changed []string
	for _, f := range trackedFields {
		if !f.equal(a, b) {
			changed = append(changed, f.name)
		}
	}
	changed = append(changed, rawImageDiff(a.RawSnapshot, b.RawSnapshot)...)
	return changed
}

// rawImageDiff compares the raw image sub-structures of two payloads.
func rawImageDiff(a, b json.RawMessage) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	var left, right map[string]json.RawMessage
	if json.Unmarshal(a, &left) != nil || json.Unmarshal(b, &right) != nil {
		return nil
	}

	var changed []string
	for _, key := range rawImageKeys {
		if !JSONEqual(left[key], right[key]) {
			changed = append(changed, "raw:"+key)
		}
	}
	return changed
}

// JSONEqual reports whether two JSON documents are structurally equal:
// object key order is ignored and numbers compare by their literal value.
// A missing document equals JSON null.
func JSONEqual(a, b json.RawMessage) bool {
	va, errA := decodeCanonical(a)
	vb, errB := decodeCanonical(b)
	if errA != nil || errB != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	return reflect.DeepEqual(va, vb)
}

func decodeCanonical(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

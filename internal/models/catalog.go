// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Item types reported by Jellyfin/Emby that the identity resolver treats specially.
const (
	ItemTypeMovie   = "Movie"
	ItemTypeEpisode = "Episode"
	ItemTypeSeries  = "Series"
	ItemTypeSeason  = "Season"
)

// TicksPerSecond is the number of 100ns ticks in one second (RunTimeTicks unit).
const TicksPerSecond = 10_000_000

// CatalogItem is one mirrored piece of content (movie, episode, series, season...).
// ID is assigned by the upstream server and is only unique per server; it can
// change when the server deletes and recreates the item.
type CatalogItem struct {
	ID        string `json:"id"`
	ServerID  string `json:"server_id"`
	LibraryID string `json:"library_id"`

	Name          string `json:"name"`
	OriginalTitle string `json:"original_title,omitempty"`
	SortName      string `json:"sort_name,omitempty"`
	Type          string `json:"type"`
	MediaType     string `json:"media_type,omitempty"`
	Path          string `json:"path,omitempty"`
	Container     string `json:"container,omitempty"`

	// VersionTag is the server's opaque change marker (Etag).
	VersionTag  string            `json:"version_tag,omitempty"`
	ProviderIDs map[string]string `json:"provider_ids,omitempty"` // Imdb, Tmdb, Tvdb...

	SeriesName        string `json:"series_name,omitempty"`
	SeriesID          string `json:"series_id,omitempty"`
	SeasonID          string `json:"season_id,omitempty"`
	SeasonName        string `json:"season_name,omitempty"`
	ParentID          string `json:"parent_id,omitempty"`
	IndexNumber       *int   `json:"index_number,omitempty"`        // Episode number
	ParentIndexNumber *int   `json:"parent_index_number,omitempty"` // Season number

	RunTimeTicks   int64      `json:"run_time_ticks,omitempty"`
	ProductionYear *int       `json:"production_year,omitempty"`
	PremiereDate   *time.Time `json:"premiere_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	DateCreated    *time.Time `json:"date_created,omitempty"`

	CommunityRating *float64 `json:"community_rating,omitempty"`
	CriticRating    *float64 `json:"critic_rating,omitempty"`
	OfficialRating  string   `json:"official_rating,omitempty"`
	Overview        string   `json:"overview,omitempty"`
	Taglines        []string `json:"taglines,omitempty"`
	Genres          []string `json:"genres,omitempty"`
	Studios         []string `json:"studios,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Status          string   `json:"status,omitempty"`

	IsFolder     bool   `json:"is_folder"`
	ChildCount   *int   `json:"child_count,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	VideoType    string `json:"video_type,omitempty"`
	LocationType string `json:"location_type,omitempty"`
	HasSubtitles bool   `json:"has_subtitles"`

	PrimaryImageTag         string   `json:"primary_image_tag,omitempty"`
	ThumbImageTag           string   `json:"thumb_image_tag,omitempty"`
	LogoImageTag            string   `json:"logo_image_tag,omitempty"`
	BannerImageTag          string   `json:"banner_image_tag,omitempty"`
	ArtImageTag             string   `json:"art_image_tag,omitempty"`
	PrimaryImageAspectRatio *float64 `json:"primary_image_aspect_ratio,omitempty"`
	PrimaryImageHash        string   `json:"primary_image_hash,omitempty"` // BlurHash of the primary image
	BackdropImageTags       []string `json:"backdrop_image_tags,omitempty"`

	// RawSnapshot is the upstream payload stored verbatim.
	RawSnapshot json.RawMessage `json:"raw_snapshot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuntimeSeconds returns the item's runtime in whole seconds, or 0 when unknown.
func (c *CatalogItem) RuntimeSeconds() int64 {
	if c == nil || c.RunTimeTicks <= 0 {
		return 0
	}
	return c.RunTimeTicks / TicksPerSecond
}

// Library is a mirrored top-level media folder of one server.
type Library struct {
	ID             string     `json:"id"`
	ServerID       string     `json:"server_id"`
	Name           string     `json:"name"`
	CollectionType string     `json:"collection_type,omitempty"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"` // Set when the library disappeared upstream
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ItemsPage is one page of a library listing. Items are kept raw so each can
// be snapshotted verbatim and decoded (or rejected) individually.
type ItemsPage struct {
	Items      []json.RawMessage
	TotalCount int
}

// RemoteLibrary is a media folder as returned by /Library/MediaFolders.
type RemoteLibrary struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType,omitempty"`
}

// NameIDPair is the {Name, Id} shape used for studios and people.
type NameIDPair struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

// RemoteItem is the subset of the Jellyfin/Emby BaseItemDto that is mirrored.
// Dates are strings because servers emit several layouts (7 fractional digits,
// missing zone designator, the 0001-01-01 zero value).
type RemoteItem struct {
	ID            string            `json:"Id"`
	Name          string            `json:"Name"`
	OriginalTitle string            `json:"OriginalTitle,omitempty"`
	SortName      string            `json:"SortName,omitempty"`
	Type          string            `json:"Type"`
	MediaType     string            `json:"MediaType,omitempty"`
	Path          string            `json:"Path,omitempty"`
	Container     string            `json:"Container,omitempty"`
	Etag          string            `json:"Etag,omitempty"`
	ProviderIDs   map[string]string `json:"ProviderIds,omitempty"`

	SeriesName        string `json:"SeriesName,omitempty"`
	SeriesID          string `json:"SeriesId,omitempty"`
	SeasonID          string `json:"SeasonId,omitempty"`
	SeasonName        string `json:"SeasonName,omitempty"`
	ParentID          string `json:"ParentId,omitempty"`
	IndexNumber       *int   `json:"IndexNumber,omitempty"`
	ParentIndexNumber *int   `json:"ParentIndexNumber,omitempty"`

	RunTimeTicks   *int64 `json:"RunTimeTicks,omitempty"`
	ProductionYear *int   `json:"ProductionYear,omitempty"`
	PremiereDate   string `json:"PremiereDate,omitempty"`
	EndDate        string `json:"EndDate,omitempty"`
	DateCreated    string `json:"DateCreated,omitempty"`

	CommunityRating *float64     `json:"CommunityRating,omitempty"`
	CriticRating    *float64     `json:"CriticRating,omitempty"`
	OfficialRating  string       `json:"OfficialRating,omitempty"`
	Overview        string       `json:"Overview,omitempty"`
	Taglines        []string     `json:"Taglines,omitempty"`
	Genres          []string     `json:"Genres,omitempty"`
	Studios         []NameIDPair `json:"Studios,omitempty"`
	Tags            []string     `json:"Tags,omitempty"`
	Status          string       `json:"Status,omitempty"`

	IsFolder     bool   `json:"IsFolder"`
	ChildCount   *int   `json:"ChildCount,omitempty"`
	Width        *int   `json:"Width,omitempty"`
	Height       *int   `json:"Height,omitempty"`
	VideoType    string `json:"VideoType,omitempty"`
	LocationType string `json:"LocationType,omitempty"`
	HasSubtitles bool   `json:"HasSubtitles,omitempty"`

	ImageTags               map[string]string            `json:"ImageTags,omitempty"`
	BackdropImageTags       []string                     `json:"BackdropImageTags,omitempty"`
	ImageBlurHashes         map[string]map[string]string `json:"ImageBlurHashes,omitempty"`
	PrimaryImageAspectRatio *float64                     `json:"PrimaryImageAspectRatio,omitempty"`
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/catalogmirror/internal/models"
)

// upsertChunkSize bounds the number of rows per multi-row INSERT statement.
const upsertChunkSize = 100

// catalogMirroredColumns are the columns refreshed from upstream data, in
// the order produced by catalogMirroredArgs. An in-place update rewrites
// exactly these columns plus updated_at.
var catalogMirroredColumns = []string{
	"library_id", "name", "original_title", "sort_name", "type", "media_type",
	"path", "container", "version_tag", "provider_ids",
	"series_name", "series_id", "season_id", "season_name", "parent_id",
	"index_number", "parent_index_number",
	"run_time_ticks", "production_year", "premiere_date", "end_date", "date_created",
	"community_rating", "critic_rating", "official_rating", "overview",
	"taglines", "genres", "studios", "tags", "status",
	"is_folder", "child_count", "width", "height", "video_type", "location_type", "has_subtitles",
	"primary_image_tag", "thumb_image_tag", "logo_image_tag", "banner_image_tag", "art_image_tag",
	"primary_image_aspect_ratio", "primary_image_hash", "backdrop_image_tags",
	"raw_snapshot",
}

// catalogInsertColumns is the full column list of catalog_items.
var catalogInsertColumns = append(append([]string{"server_id", "id"}, catalogMirroredColumns...), "created_at", "updated_at")

var catalogSelectList = strings.Join(catalogInsertColumns, ", ")

func catalogMirroredArgs(item *models.CatalogItem) ([]any, error) {
	providerIDs, err := mapJSON(item.ProviderIDs)
	if err != nil {
		return nil, fmt.Errorf("provider_ids: %w", err)
	}
	lists := make([]any, 0, 5)
	for _, l := range [][]string{item.Taglines, item.Genres, item.Studios, item.Tags, item.BackdropImageTags} {
		v, err := stringsJSON(l)
		if err != nil {
			return nil, err
		}
		lists = append(lists, v)
	}
	var raw any
	if len(item.RawSnapshot) > 0 {
		raw = string(item.RawSnapshot)
	}

	return []any{
		item.LibraryID, item.Name, nullString(item.OriginalTitle), nullString(item.SortName), item.Type, nullString(item.MediaType),
		nullString(item.Path), nullString(item.Container), nullString(item.VersionTag), providerIDs,
		nullString(item.SeriesName), nullString(item.SeriesID), nullString(item.SeasonID), nullString(item.SeasonName), nullString(item.ParentID),
		nullInt(item.IndexNumber), nullInt(item.ParentIndexNumber),
		item.RunTimeTicks, nullInt(item.ProductionYear), nullTime(item.PremiereDate), nullTime(item.EndDate), nullTime(item.DateCreated),
		nullFloat(item.CommunityRating), nullFloat(item.CriticRating), nullString(item.OfficialRating), nullString(item.Overview),
		lists[0], lists[1], lists[2], lists[3], nullString(item.Status),
		item.IsFolder, nullInt(item.ChildCount), item.Width, item.Height, nullString(item.VideoType), nullString(item.LocationType), item.HasSubtitles,
		nullString(item.PrimaryImageTag), nullString(item.ThumbImageTag), nullString(item.LogoImageTag), nullString(item.BannerImageTag), nullString(item.ArtImageTag),
		nullFloat(item.PrimaryImageAspectRatio), nullString(item.PrimaryImageHash), lists[4],
		raw,
	}, nil
}

func catalogInsertArgs(item *models.CatalogItem, now time.Time) ([]any, error) {
	mirrored, err := catalogMirroredArgs(item)
	if err != nil {
		return nil, err
	}
	created := item.CreatedAt
	if created.IsZero() {
		created = now
	}
	args := make([]any, 0, len(catalogInsertColumns))
	args = append(args, item.ServerID, item.ID)
	args = append(args, mirrored...)
	args = append(args, created.UTC(), now)
	return args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatalogItem(row rowScanner) (*models.CatalogItem, error) {
	var (
		item                                                                 models.CatalogItem
		originalTitle, sortName, mediaType, path, container, versionTag      sql.NullString
		providerIDs, seriesName, seriesID, seasonID, seasonName, parentID    sql.NullString
		indexNumber, parentIndexNumber, productionYear, childCount           sql.NullInt64
		runTimeTicks, width, height                                          sql.NullInt64
		premiereDate, endDate, dateCreated                                   sql.NullTime
		communityRating, criticRating, aspectRatio                           sql.NullFloat64
		officialRating, overview, taglines, genres, studios, tags, status    sql.NullString
		videoType, locationType                                              sql.NullString
		primaryTag, thumbTag, logoTag, bannerTag, artTag, primaryHash, backs sql.NullString
		name, raw                                                            sql.NullString
	)

	err := row.Scan(
		&item.ServerID, &item.ID,
		&item.LibraryID, &name, &originalTitle, &sortName, &item.Type, &mediaType,
		&path, &container, &versionTag, &providerIDs,
		&seriesName, &seriesID, &seasonID, &seasonName, &parentID,
		&indexNumber, &parentIndexNumber,
		&runTimeTicks, &productionYear, &premiereDate, &endDate, &dateCreated,
		&communityRating, &criticRating, &officialRating, &overview,
		&taglines, &genres, &studios, &tags, &status,
		&item.IsFolder, &childCount, &width, &height, &videoType, &locationType, &item.HasSubtitles,
		&primaryTag, &thumbTag, &logoTag, &bannerTag, &artTag,
		&aspectRatio, &primaryHash, &backs,
		&raw,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Name = name.String
	item.OriginalTitle = originalTitle.String
	item.SortName = sortName.String
	item.MediaType = mediaType.String
	item.Path = path.String
	item.Container = container.String
	item.VersionTag = versionTag.String
	item.SeriesName = seriesName.String
	item.SeriesID = seriesID.String
	item.SeasonID = seasonID.String
	item.SeasonName = seasonName.String
	item.ParentID = parentID.String
	item.IndexNumber = intPtr(indexNumber)
	item.ParentIndexNumber = intPtr(parentIndexNumber)
	item.RunTimeTicks = runTimeTicks.Int64
	item.ProductionYear = intPtr(productionYear)
	item.PremiereDate = timePtr(premiereDate)
	item.EndDate = timePtr(endDate)
	item.DateCreated = timePtr(dateCreated)
	item.CommunityRating = floatPtr(communityRating)
	item.CriticRating = floatPtr(criticRating)
	item.OfficialRating = officialRating.String
	item.Overview = overview.String
	item.Status = status.String
	item.ChildCount = intPtr(childCount)
	item.Width = int(width.Int64)
	item.Height = int(height.Int64)
	item.VideoType = videoType.String
	item.LocationType = locationType.String
	item.PrimaryImageTag = primaryTag.String
	item.ThumbImageTag = thumbTag.String
	item.LogoImageTag = logoTag.String
	item.BannerImageTag = bannerTag.String
	item.ArtImageTag = artTag.String
	item.PrimaryImageAspectRatio = floatPtr(aspectRatio)
	item.PrimaryImageHash = primaryHash.String
	if raw.Valid {
		item.RawSnapshot = []byte(raw.String)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()

	if item.ProviderIDs, err = decodeStringMap(providerIDs); err != nil {
		return nil, fmt.Errorf("decode provider_ids: %w", err)
	}
	for _, f := range []struct {
		dst *[]string
		src sql.NullString
	}{
		{&item.Taglines, taglines}, {&item.Genres, genres}, {&item.Studios, studios},
		{&item.Tags, tags}, {&item.BackdropImageTags, backs},
	} {
		if *f.dst, err = decodeStrings(f.src); err != nil {
			return nil, fmt.Errorf("decode list column: %w", err)
		}
	}
	return &item, nil
}

// GetCatalogItem returns one stored item, or ErrItemNotFound.
func (db *DB) GetCatalogItem(ctx context.Context, serverID, id string) (item *models.CatalogItem, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "catalog_items", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+catalogSelectList+` FROM catalog_items WHERE server_id = ? AND id = ?`, serverID, id)
	item, err = scanCatalogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog item %s: %w", id, err)
	}
	return item, nil
}

// GetCatalogItems returns the stored items among ids, keyed by id.
// Missing ids are simply absent from the map.
func (db *DB) GetCatalogItems(ctx context.Context, serverID string, ids []string) (items map[string]*models.CatalogItem, err error) {
	items = make(map[string]*models.CatalogItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "catalog_items", time.Now(), &err)

	args := make([]any, 0, len(ids)+1)
	args = append(args, serverID)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT ` + catalogSelectList + ` FROM catalog_items WHERE server_id = ? AND id IN ` + placeholders(len(ids))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog items: %w", err)
	}
	defer closeWithLog(rows, "catalog item rows")

	for rows.Next() {
		item, scanErr := scanCatalogItem(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", scanErr)
		}
		items[item.ID] = item
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog items: %w", err)
	}
	return items, nil
}

// ListLibraryItems returns every stored item of one library, ordered by id.
// This is the identity resolver's candidate set.
func (db *DB) ListLibraryItems(ctx context.Context, serverID, libraryID string) (items []*models.CatalogItem, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("select", "catalog_items", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+catalogSelectList+` FROM catalog_items WHERE server_id = ? AND library_id = ? ORDER BY id`,
		serverID, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list library items: %w", err)
	}
	defer closeWithLog(rows, "catalog item rows")

	items = make([]*models.CatalogItem, 0)
	for rows.Next() {
		item, scanErr := scanCatalogItem(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", scanErr)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating library items: %w", err)
	}
	return items, nil
}

// UpsertCatalogItems inserts items, updating the mirrored columns of rows
// whose (server_id, id) already exists. Each row is atomic on its own;
// statements are chunked to bound parameter counts.
func (db *DB) UpsertCatalogItems(ctx context.Context, items []*models.CatalogItem) (err error) {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("upsert", "catalog_items", time.Now(), &err)

	// DuckDB rejects ON CONFLICT DO UPDATE touching one row twice per statement.
	items = dedupeItems(items)

	setClauses := make([]string, 0, len(catalogMirroredColumns)+1)
	for _, col := range catalogMirroredColumns {
		setClauses = append(setClauses, col+" = EXCLUDED."+col)
	}
	setClauses = append(setClauses, "updated_at = EXCLUDED.updated_at")
	conflict := ` ON CONFLICT (server_id, id) DO UPDATE SET ` + strings.Join(setClauses, ", ")
	rowMarks := placeholders(len(catalogInsertColumns))
	now := time.Now().UTC()

	for start := 0; start < len(items); start += upsertChunkSize {
		end := min(start+upsertChunkSize, len(items))
		chunk := items[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*len(catalogInsertColumns))
		for _, item := range chunk {
			rowArgs, argErr := catalogInsertArgs(item, now)
			if argErr != nil {
				return fmt.Errorf("failed to encode catalog item %s: %w", item.ID, argErr)
			}
			values = append(values, rowMarks)
			args = append(args, rowArgs...)
		}

		query := `INSERT INTO catalog_items (` + catalogSelectList + `) VALUES ` + strings.Join(values, ", ") + conflict
		if _, err = db.conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert catalog items: %w", err)
		}
	}
	return nil
}

func dedupeItems(items []*models.CatalogItem) []*models.CatalogItem {
	index := make(map[string]int, len(items))
	out := make([]*models.CatalogItem, 0, len(items))
	for _, item := range items {
		key := item.ServerID + "\x00" + item.ID
		if i, ok := index[key]; ok {
			out[i] = item
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

// UpdateCatalogItem rewrites the mirrored columns of an existing row in place.
// Identity columns and created_at are untouched.
func (db *DB) UpdateCatalogItem(ctx context.Context, item *models.CatalogItem) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer observe("update", "catalog_items", time.Now(), &err)

	args, err := catalogMirroredArgs(item)
	if err != nil {
		return fmt.Errorf("failed to encode catalog item %s: %w", item.ID, err)
	}
	setClauses := make([]string, 0, len(catalogMirroredColumns)+1)
	for _, col := range catalogMirroredColumns {
		setClauses = append(setClauses, col+" = ?")
	}
	setClauses = append(setClauses, "updated_at = ?")
	args = append(args, time.Now().UTC(), item.ServerID, item.ID)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE catalog_items SET `+strings.Join(setClauses, ", ")+` WHERE server_id = ? AND id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update catalog item %s: %w", item.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// CountCatalogItems returns the number of stored items for a server.
func (db *DB) CountCatalogItems(ctx context.Context, serverID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_items WHERE server_id = ?`, serverID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalog items: %w", err)
	}
	return n, nil
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
jellyfin_client.go - Jellyfin/Emby REST API Client

Read-only client for the catalog, user and activity-log endpoints. Emby
shares the same API surface, so one client serves both platforms.

Rate Limiting:
  - Outgoing requests pass a token-bucket limiter (requests_per_second)
  - HTTP 429 responses are retried with exponential backoff (1s, 2s, 4s...)
    honoring Retry-After

Catalog items are returned as raw JSON so that the verbatim payload can be
stored and a malformed item fails on its own rather than failing the page.

API Reference: https://api.jellyfin.org/
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/models"
)

// CatalogClient is the read contract the syncers depend on.
// Both JellyfinClient and JellyfinCircuitBreakerClient implement it.
type CatalogClient interface {
	Ping(ctx context.Context) error
	FetchLibraries(ctx context.Context) ([]models.RemoteLibrary, error)
	FetchItemsPage(ctx context.Context, libraryID string, offset, limit int) (*models.ItemsPage, error)
	FetchRecentItems(ctx context.Context, libraryID string, limit int) ([]json.RawMessage, error)
	FetchUsers(ctx context.Context) ([]models.RemoteUser, error)
	FetchActivityLog(ctx context.Context, offset, limit int, minDate *time.Time) (*models.ActivityPage, error)
}

// Ensure JellyfinClient implements CatalogClient
var _ CatalogClient = (*JellyfinClient)(nil)

// itemFields is the Fields= projection requested for catalog items.
var itemFields = strings.Join([]string{
	"Path", "ProviderIds", "Overview", "Genres", "Studios", "Tags", "Taglines",
	"OriginalTitle", "SortName", "DateCreated", "PremiereDate", "Etag",
	"Width", "Height", "ChildCount", "PrimaryImageAspectRatio", "MediaSources",
}, ",")

// JellyfinClient provides access to the Jellyfin (or Emby) REST API
type JellyfinClient struct {
	baseURL        string
	apiKey         string
	userID         string // Optional: scopes item queries to one user's view
	clientName     string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewJellyfinClient creates a client for one configured server.
// A RequestsPerSecond of 0 disables the limiter.
func NewJellyfinClient(cfg *config.MediaServerConfig) *JellyfinClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	clientName := "Catalogmirror"
	if cfg.Platform == config.PlatformEmby {
		clientName = "Catalogmirror (Emby)"
	}

	return &JellyfinClient{
		baseURL:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:         cfg.APIKey,
		userID:         cfg.UserID,
		clientName:     clientName,
		httpClient:     &http.Client{Timeout: timeout},
		limiter:        rate.NewLimiter(limit, burst),
		maxRetries:     5,
		retryBaseDelay: time.Second,
	}
}

// mediaFoldersResponse is the envelope of /Library/MediaFolders.
type mediaFoldersResponse struct {
	Items []models.RemoteLibrary `json:"Items"`
}

// itemsResponse is the envelope of /Items, with items left undecoded.
type itemsResponse struct {
	Items            []json.RawMessage `json:"Items"`
	TotalRecordCount int               `json:"TotalRecordCount"`
}

// FetchLibraries returns the server's top-level media folders.
func (c *JellyfinClient) FetchLibraries(ctx context.Context) ([]models.RemoteLibrary, error) {
	var resp mediaFoldersResponse
	if err := c.getJSON(ctx, "/Library/MediaFolders", nil, &resp); err != nil {
		return nil, fmt.Errorf("jellyfin media folders request failed: %w", err)
	}
	return resp.Items, nil
}

// FetchItemsPage returns one page of a library's items in a stable order
// (SortName, then Id) so offsets stay meaningful across pages.
func (c *JellyfinClient) FetchItemsPage(ctx context.Context, libraryID string, offset, limit int) (*models.ItemsPage, error) {
	params := c.itemQuery(libraryID)
	params.Set("StartIndex", strconv.Itoa(offset))
	params.Set("Limit", strconv.Itoa(limit))
	params.Set("EnableTotalRecordCount", "true")
	params.Set("SortBy", "SortName,Id")
	params.Set("SortOrder", "Ascending")

	var resp itemsResponse
	if err := c.getJSON(ctx, c.itemsEndpoint(), params, &resp); err != nil {
		return nil, fmt.Errorf("jellyfin items request failed (library %s, offset %d): %w", libraryID, offset, err)
	}
	return &models.ItemsPage{Items: resp.Items, TotalCount: resp.TotalRecordCount}, nil
}

// FetchRecentItems returns the newest limit items of a library.
func (c *JellyfinClient) FetchRecentItems(ctx context.Context, libraryID string, limit int) ([]json.RawMessage, error) {
	params := c.itemQuery(libraryID)
	params.Set("Limit", strconv.Itoa(limit))
	params.Set("SortBy", "DateCreated")
	params.Set("SortOrder", "Descending")
	params.Set("EnableTotalRecordCount", "false")

	var resp itemsResponse
	if err := c.getJSON(ctx, c.itemsEndpoint(), params, &resp); err != nil {
		return nil, fmt.Errorf("jellyfin recent items request failed (library %s): %w", libraryID, err)
	}
	return resp.Items, nil
}

// FetchUsers returns every account on the server.
func (c *JellyfinClient) FetchUsers(ctx context.Context) ([]models.RemoteUser, error) {
	var users []models.RemoteUser
	if err := c.getJSON(ctx, "/Users", nil, &users); err != nil {
		return nil, fmt.Errorf("jellyfin users request failed: %w", err)
	}
	return users, nil
}

// FetchActivityLog returns one page of the server activity log, newest first.
// minDate, when set, restricts the log to entries at or after it.
func (c *JellyfinClient) FetchActivityLog(ctx context.Context, offset, limit int, minDate *time.Time) (*models.ActivityPage, error) {
	params := url.Values{}
	params.Set("startIndex", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	if minDate != nil {
		params.Set("minDate", minDate.UTC().Format(time.RFC3339))
	}

	var page models.ActivityPage
	if err := c.getJSON(ctx, "/System/ActivityLog/Entries", params, &page); err != nil {
		return nil, fmt.Errorf("jellyfin activity log request failed (offset %d): %w", offset, err)
	}
	return &page, nil
}

// Ping tests connectivity to the server
func (c *JellyfinClient) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "/System/Ping", nil)
	if err != nil {
		return fmt.Errorf("jellyfin ping failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("jellyfin ping returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *JellyfinClient) itemsEndpoint() string {
	if c.userID != "" {
		return "/Users/" + url.PathEscape(c.userID) + "/Items"
	}
	return "/Items"
}

func (c *JellyfinClient) itemQuery(libraryID string) url.Values {
	params := url.Values{}
	params.Set("ParentId", libraryID)
	params.Set("Recursive", "true")
	params.Set("Fields", itemFields)
	params.Set("EnableImageTypes", "Primary,Backdrop,Thumb,Logo,Banner,Art")
	params.Set("ImageTypeLimit", "1")
	return params
}

// getJSON performs a GET and decodes a 200 response body into result.
func (c *JellyfinClient) getJSON(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	resp, err := c.doRequest(ctx, endpoint, params)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("%s returned status %d (failed to read body)", endpoint, resp.StatusCode)
		}
		return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// doRequest performs a rate-limited GET. HTTP 429 responses are retried with
// exponential backoff; the context cancels both the limiter wait and backoff.
func (c *JellyfinClient) doRequest(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("X-Emby-Token", c.apiKey)
		req.Header.Set("X-Emby-Client", c.clientName)
		req.Header.Set("X-Emby-Device-Name", "Catalogmirror")
		req.Header.Set("X-Emby-Device-Id", "catalogmirror")
		req.Header.Set("X-Emby-Client-Version", "1.0.0")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				delay = time.Duration(seconds) * time.Second
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

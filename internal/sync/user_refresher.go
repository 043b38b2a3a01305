// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"fmt"

	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/models"
)

// UserRefresher mirrors the account list so session reconstruction can
// resolve user references.
type UserRefresher struct {
	serverID string
	client   CatalogClient
	store    UserStore
}

// NewUserRefresher creates a refresher for serverID.
func NewUserRefresher(serverID string, client CatalogClient, store UserStore) *UserRefresher {
	return &UserRefresher{serverID: serverID, client: client, store: store}
}

// Refresh fetches and stores every user, returning how many were seen.
func (r *UserRefresher) Refresh(ctx context.Context) (int, error) {
	remote, err := r.client.FetchUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	users := make([]models.User, 0, len(remote))
	for i := range remote {
		ru := &remote[i]
		id := normalizeGUID(ru.ID)
		if id == "" {
			continue
		}
		users = append(users, models.User{
			ID:               id,
			ServerID:         r.serverID,
			Name:             ru.Name,
			IsAdmin:          ru.Policy.IsAdministrator,
			LastActivityDate: parseJellyfinTime(ru.LastActivityDate),
		})
	}

	if err := r.store.UpsertUsers(ctx, users); err != nil {
		return 0, fmt.Errorf("failed to store users: %w", err)
	}
	logging.Ctx(ctx).Debug().Int("users", len(users)).Msg("Users refreshed")
	return len(users), nil
}

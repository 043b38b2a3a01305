// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"context"
	"testing"

	"github.com/tomtom215/catalogmirror/internal/models"
)

func remoteUser(id, name string, admin bool) models.RemoteUser {
	u := models.RemoteUser{ID: id, Name: name, LastActivityDate: "2023-03-04T20:00:00.0000000Z"}
	u.Policy.IsAdministrator = admin
	return u
}

func TestUserRefresher_Refresh(t *testing.T) {
	client := newFakeClient()
	client.users = []models.RemoteUser{
		remoteUser("6F1C2D3E-4A5B-6C7D-8E9F-0A1B2C3D4E5F", "alice", true),
		remoteUser("bob-id", "bob", false),
		remoteUser("00000000-0000-0000-0000-000000000000", "system", false),
	}
	store := newFakeStore()

	n, err := NewUserRefresher("srv", client, store).Refresh(context.Background())
	checkNoError(t, err)
	checkIntEqual(t, "users", n, 2)

	alice, err := store.GetUser(context.Background(), "srv", "6f1c2d3e4a5b6c7d8e9f0a1b2c3d4e5f")
	checkNoError(t, err)
	checkStringEqual(t, "name", alice.Name, "alice")
	checkTrue(t, "admin", alice.IsAdmin)
	checkTrue(t, "last activity", alice.LastActivityDate != nil)

	_, err = store.GetUser(context.Background(), "srv", "bobid")
	checkNoError(t, err)
}

// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
unit_of_work.go - All-or-nothing transactional unit for identity migration

When a server deletes and recreates an item under a new id, the mirror keeps
the item's history by migrating the identity in one transaction:

 1. insert the new item row under the new id
 2. repoint every session from the old id to the new id
 3. delete the old item row

Any failing step rolls the whole unit back. A UnitOfWork is single-use: once
Commit or Rollback has run, further calls return ErrUnitOfWorkDone.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/models"
)

// UnitOfWork is one open transaction on the catalog store.
type UnitOfWork struct {
	mu   sync.Mutex
	tx   *sql.Tx
	done bool
}

// BeginUnitOfWork opens a new transaction. The caller must finish it with
// Commit or Rollback; Rollback after Commit is a no-op.
func (db *DB) BeginUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

func (u *UnitOfWork) active() error {
	if u.done {
		return ErrUnitOfWorkDone
	}
	return nil
}

// InsertCatalogItem inserts a brand-new item row. An existing row with the
// same (server_id, id) yields ErrItemIDConflict.
func (u *UnitOfWork) InsertCatalogItem(ctx context.Context, item *models.CatalogItem) (err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err = u.active(); err != nil {
		return err
	}
	defer observe("insert", "catalog_items", time.Now(), &err)

	args, err := catalogInsertArgs(item, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to encode catalog item %s: %w", item.ID, err)
	}
	_, err = u.tx.ExecContext(ctx,
		`INSERT INTO catalog_items (`+catalogSelectList+`) VALUES `+placeholders(len(catalogInsertColumns)), args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrItemIDConflict, item.ID)
		}
		return fmt.Errorf("failed to insert catalog item %s: %w", item.ID, err)
	}
	return nil
}

// RepointSessions moves every session of serverID from oldItemID to newItemID
// and returns the number of rows moved.
func (u *UnitOfWork) RepointSessions(ctx context.Context, serverID, oldItemID, newItemID string) (moved int64, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err = u.active(); err != nil {
		return 0, err
	}
	defer observe("update", "sessions", time.Now(), &err)

	res, err := u.tx.ExecContext(ctx,
		`UPDATE sessions SET item_id = ? WHERE server_id = ? AND item_id = ?`,
		newItemID, serverID, oldItemID)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint sessions from %s: %w", oldItemID, err)
	}
	moved, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read repointed session count: %w", err)
	}
	return moved, nil
}

// DeleteCatalogItem removes exactly one item row. Zero affected rows means the
// source disappeared under us and yields ErrMigrationSourceMissing.
func (u *UnitOfWork) DeleteCatalogItem(ctx context.Context, serverID, id string) (err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err = u.active(); err != nil {
		return err
	}
	defer observe("delete", "catalog_items", time.Now(), &err)

	res, err := u.tx.ExecContext(ctx, `DELETE FROM catalog_items WHERE server_id = ? AND id = ?`, serverID, id)
	if err != nil {
		return fmt.Errorf("failed to delete catalog item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deleted item count: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s", ErrMigrationSourceMissing, id)
	}
	return nil
}

// Commit makes every step of the unit durable.
func (u *UnitOfWork) Commit() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.active(); err != nil {
		return err
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards every step of the unit. Safe to defer unconditionally.
func (u *UnitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// MigrateItemIdentity replaces the stored item oldID with item (which carries
// the new id) and moves its sessions over, atomically. Returns the number of
// sessions repointed. On any error nothing is changed.
func (db *DB) MigrateItemIdentity(ctx context.Context, oldID string, item *models.CatalogItem) (moved int64, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	uow, err := db.BeginUnitOfWork(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if rbErr := uow.Rollback(); rbErr != nil {
			logging.Error().
				Err(rbErr).
				AnErr("original_error", err).
				Msg("Transaction rollback failed")
		}
	}()

	if err = uow.InsertCatalogItem(ctx, item); err != nil {
		return 0, err
	}
	if moved, err = uow.RepointSessions(ctx, item.ServerID, oldID, item.ID); err != nil {
		return 0, err
	}
	if err = uow.DeleteCatalogItem(ctx, item.ServerID, oldID); err != nil {
		return 0, err
	}
	if err = uow.Commit(); err != nil {
		return 0, err
	}
	return moved, nil
}

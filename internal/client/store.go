package client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tbechet/safestep/internal/model"
)

// timeLayout matches the wire format of server timestamps.
const timeLayout = "2006-01-02 15:04:05"

// PutItem upserts one item into the local mirror.
func PutItem(ctx context.Context, db *sql.DB, item model.Item) error {
	localOnly := 0
	if item.IsLocalOnly {
		localOnly = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO items (id, tag_ref, category, status, site_id, owner_user_id,
		                    quantity, available, last_check, updated_at, is_local_only)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     tag_ref = excluded.tag_ref, category = excluded.category,
		     status = excluded.status, site_id = excluded.site_id,
		     owner_user_id = excluded.owner_user_id, quantity = excluded.quantity,
		     available = excluded.available, last_check = excluded.last_check,
		     updated_at = excluded.updated_at, is_local_only = excluded.is_local_only`,
		item.ID, item.TagRef, item.Category, item.Status, item.SiteID, item.OwnerUserID,
		item.Quantity, item.Available, item.LastCheck, item.UpdatedAt.Format(timeLayout), localOnly,
	)
	if err != nil {
		return fmt.Errorf("putting item: %w", err)
	}
	return nil
}

// GetItem returns one item from the local mirror.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item := &model.Item{}
	var localOnly int
	var lastCheck, updatedAt sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, tag_ref, category, status, site_id, owner_user_id,
		        quantity, available, last_check, updated_at, is_local_only
		 FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.TagRef, &item.Category, &item.Status, &item.SiteID, &item.OwnerUserID,
		&item.Quantity, &item.Available, &lastCheck, &updatedAt, &localOnly)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	item.LastCheck = lastCheck.String
	item.IsLocalOnly = localOnly != 0
	if updatedAt.Valid {
		if ts, err := time.Parse(timeLayout, updatedAt.String); err == nil {
			item.UpdatedAt = ts
		}
	}
	return item, nil
}

// ListItems returns every item in the local mirror. Reads never block on
// sync state: previously synced data stays visible while offline.
func ListItems(ctx context.Context, db *sql.DB) ([]model.Item, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, tag_ref, category, status, site_id, owner_user_id,
		        quantity, available, last_check, updated_at, is_local_only
		 FROM items ORDER BY tag_ref`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		var localOnly int
		var lastCheck, updatedAt sql.NullString
		if err := rows.Scan(&item.ID, &item.TagRef, &item.Category, &item.Status, &item.SiteID, &item.OwnerUserID,
			&item.Quantity, &item.Available, &lastCheck, &updatedAt, &localOnly); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.LastCheck = lastCheck.String
		item.IsLocalOnly = localOnly != 0
		if updatedAt.Valid {
			if ts, err := time.Parse(timeLayout, updatedAt.String); err == nil {
				item.UpdatedAt = ts
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem removes one item from the local mirror.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// BulkPut replaces the server-confirmed part of the mirror with the given
// canonical item set. Local-only items (not yet acknowledged by the server)
// are preserved. Applying the same set twice is a no-op.
func BulkPut(ctx context.Context, db *sql.DB, items []model.Item) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE is_local_only = 0`); err != nil {
		return fmt.Errorf("clearing confirmed items: %w", err)
	}

	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		// Guard against duplicate or invalid ids in the server response.
		if item.ID <= 0 || seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, tag_ref, category, status, site_id, owner_user_id,
			                    quantity, available, last_check, updated_at, is_local_only)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
			 ON CONFLICT (id) DO UPDATE SET
			     tag_ref = excluded.tag_ref, category = excluded.category,
			     status = excluded.status, site_id = excluded.site_id,
			     owner_user_id = excluded.owner_user_id, quantity = excluded.quantity,
			     available = excluded.available, last_check = excluded.last_check,
			     updated_at = excluded.updated_at, is_local_only = 0`,
			item.ID, item.TagRef, item.Category, item.Status, item.SiteID, item.OwnerUserID,
			item.Quantity, item.Available, item.LastCheck, item.UpdatedAt.Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("putting item %d: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing refresh: %w", err)
	}
	return nil
}

// NextProvisionalID returns the next negative provisional id for an item
// created offline. Provisional ids can never collide with server-assigned
// (positive) ids.
func NextProvisionalID(ctx context.Context, db *sql.DB) (int64, error) {
	var minID sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MIN(id) FROM items`).Scan(&minID)
	if err != nil {
		return 0, fmt.Errorf("getting provisional id: %w", err)
	}
	if minID.Valid && minID.Int64 < 0 {
		return minID.Int64 - 1, nil
	}
	return -1, nil
}

// GetMeta returns a meta value, or "" when unset.
func GetMeta(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a meta value.
func SetMeta(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting meta %q: %w", key, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tbechet/safestep/internal/model"
)

// CreateItem creates a new equipment item owned by the given user.
func CreateItem(ctx context.Context, db *sql.DB, ownerUserID int64, tagRef, category, status string, siteID *int64, quantity, available int) (*model.Item, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO items (tag_ref, category, status, site_id, owner_user_id, quantity, available)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tagRef, category, status, siteID, ownerUserID, quantity, available,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns an item by ID, including soft-deleted ones (for audit).
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	item := &model.Item{}
	var siteName, photoMime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT i.id, i.tag_ref, i.category, i.status, i.site_id, i.owner_user_id,
		        i.quantity, i.available, i.last_check, i.photo_mime,
		        i.created_at, i.updated_at, i.deleted_at, s.name AS site_name
		 FROM items i
		 LEFT JOIN sites s ON s.id = i.site_id
		 WHERE i.id = ?`, id,
	).Scan(&item.ID, &item.TagRef, &item.Category, &item.Status, &item.SiteID, &item.OwnerUserID,
		&item.Quantity, &item.Available, &item.LastCheck, &photoMime,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt, &siteName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	item.PhotoMime = photoMime.String
	item.SiteName = siteName.String
	return item, nil
}

// ListItems returns all non-deleted items owned by the user, or every item
// when admin is set.
func ListItems(ctx context.Context, db *sql.DB, userID int64, admin bool) ([]model.Item, error) {
	query := `SELECT i.id, i.tag_ref, i.category, i.status, i.site_id, i.owner_user_id,
	                 i.quantity, i.available, i.last_check, i.photo_mime,
	                 i.created_at, i.updated_at, i.deleted_at, s.name AS site_name
	          FROM items i
	          LEFT JOIN sites s ON s.id = i.site_id
	          WHERE i.deleted_at IS NULL`
	var args []any

	if !admin {
		query += ` AND i.owner_user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY i.tag_ref`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		var siteName, photoMime sql.NullString
		if err := rows.Scan(&item.ID, &item.TagRef, &item.Category, &item.Status, &item.SiteID, &item.OwnerUserID,
			&item.Quantity, &item.Available, &item.LastCheck, &photoMime,
			&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt, &siteName); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.PhotoMime = photoMime.String
		item.SiteName = siteName.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's mutable fields. The caller is responsible for
// ownership checks. last_check is touched when the status changes; updated_at
// is always server-assigned (last-writer-wins authority).
func UpdateItem(ctx context.Context, db *sql.DB, id int64, tagRef, category, status string, siteID *int64, quantity, available int) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items
		 SET last_check = CASE WHEN status <> ? THEN date('now') ELSE last_check END,
		     tag_ref = ?, category = ?, status = ?, site_id = ?,
		     quantity = ?, available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		status, tagRef, category, status, siteID, quantity, available, id,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	return nil
}

// UpdateItemOwned updates an item's mutable fields scoped to its owner, so
// the ownership check and the write are a single statement. Reports whether
// a row was affected.
func UpdateItemOwned(ctx context.Context, db *sql.DB, id, ownerUserID int64, tagRef, category, status string, siteID *int64, quantity, available int) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE items
		 SET last_check = CASE WHEN status <> ? THEN date('now') ELSE last_check END,
		     tag_ref = ?, category = ?, status = ?, site_id = ?,
		     quantity = ?, available = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_user_id = ? AND deleted_at IS NULL`,
		status, tagRef, category, status, siteID, quantity, available, id, ownerUserID,
	)
	if err != nil {
		return false, fmt.Errorf("updating item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking updated rows: %w", err)
	}
	return n > 0, nil
}

// DeleteItem soft-deletes an item.
func DeleteItem(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// DeleteItemOwned soft-deletes an item scoped to its owner. Reports whether a
// row was affected so callers can distinguish "not found or not owned".
func DeleteItemOwned(ctx context.Context, db *sql.DB, id, ownerUserID int64) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND owner_user_id = ? AND deleted_at IS NULL`,
		id, ownerUserID,
	)
	if err != nil {
		return false, fmt.Errorf("deleting item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking deleted rows: %w", err)
	}
	return n > 0, nil
}

// SetItemPhoto stores an item's equipment photo.
func SetItemPhoto(ctx context.Context, db *sql.DB, id int64, photo []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET photo = ?, photo_mime = ? WHERE id = ? AND deleted_at IS NULL`,
		photo, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item photo: %w", err)
	}
	return nil
}

// GetItemPhoto returns an item's photo data and MIME type.
func GetItemPhoto(ctx context.Context, db *sql.DB, id int64) ([]byte, string, error) {
	var photo []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT photo, photo_mime FROM items WHERE id = ?`, id,
	).Scan(&photo, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item photo: %w", err)
	}
	return photo, mime.String, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tbechet/safestep/internal/model"
)

// RecordSyncEvent appends one row to the reconciliation audit log.
func RecordSyncEvent(ctx context.Context, db *sql.DB, userID int64, entityType string, itemID int64, action, clientTimestamp, batchID string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sync_events (user_id, entity_type, item_id, action, client_timestamp, batch_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, entityType, itemID, action, clientTimestamp, batchID,
	)
	if err != nil {
		return fmt.Errorf("recording sync event: %w", err)
	}
	return nil
}

// ListSyncEvents returns the audit trail for one item, newest first.
func ListSyncEvents(ctx context.Context, db *sql.DB, entityType string, itemID int64) ([]model.AuditEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, entity_type, item_id, action, client_timestamp, batch_id, created_at
		 FROM sync_events
		 WHERE entity_type = ? AND item_id = ?
		 ORDER BY created_at DESC, id DESC`, entityType, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sync events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var batchID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.EntityType, &e.ItemID, &e.Action, &e.ClientTimestamp, &batchID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync event: %w", err)
		}
		e.BatchID = batchID.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Package sync implements the server side of the offline reconciliation
// protocol: replaying a batch of queued client intents against the canonical
// store, one event at a time, with per-event outcomes and audit logging.
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbechet/safestep/internal/model"
	"github.com/tbechet/safestep/internal/store"
)

// Apply replays the events of a sync batch in list order. Application is not
// transactional across events: each event is independently atomic, and a
// failure is recorded as an "error" outcome without aborting its siblings.
// The response carries the count of clean applies plus every outcome in
// input order.
func Apply(ctx context.Context, db *sql.DB, userID int64, admin bool, req model.SyncRequest) model.SyncResponse {
	results := make([]model.EventOutcome, 0, len(req.Events))
	synced := 0

	for _, event := range req.Events {
		outcome := applyEvent(ctx, db, userID, admin, req.BatchID, event)
		if outcome.Status == model.OutcomeOK {
			synced++
		} else {
			slog.Warn("sync event not applied",
				"user_id", userID, "action", event.Action,
				"entity_type", event.EntityType,
				"status", outcome.Status, "message", outcome.Message)
		}
		results = append(results, outcome)
	}

	return model.SyncResponse{Synced: synced, Results: results}
}

// applyEvent applies a single event and never returns an error: every
// failure becomes an outcome.
func applyEvent(ctx context.Context, db *sql.DB, userID int64, admin bool, batchID string, event model.SyncEvent) model.EventOutcome {
	if event.EntityType != model.EntityItem {
		return model.EventOutcome{
			Status:  model.OutcomeIgnored,
			Action:  event.Action,
			Message: fmt.Sprintf("entity_type %q not handled", event.EntityType),
		}
	}

	var payload model.ItemPayload
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return errorOutcome(event.Action, 0, fmt.Errorf("decoding payload: %w", err))
		}
	}

	clientTS := event.ClientTimestamp
	if clientTS == "" {
		clientTS = time.Now().UTC().Format(time.DateTime)
	}

	switch event.Action {
	case model.ActionCreate:
		return applyCreate(ctx, db, userID, batchID, clientTS, payload)
	case model.ActionUpdate:
		return applyUpdate(ctx, db, userID, admin, batchID, clientTS, payload)
	case model.ActionDelete:
		return applyDelete(ctx, db, userID, admin, batchID, clientTS, payload)
	default:
		return errorOutcome(event.Action, 0, fmt.Errorf("unknown action %q", event.Action))
	}
}

// applyCreate inserts a new item. Any client-supplied id (provisional or
// otherwise) is ignored; the server-assigned id is returned in the outcome.
func applyCreate(ctx context.Context, db *sql.DB, userID int64, batchID, clientTS string, p model.ItemPayload) model.EventOutcome {
	if p.TagRef == nil || *p.TagRef == "" {
		return errorOutcome(model.ActionCreate, 0, fmt.Errorf("tag_ref required"))
	}
	category := stringOr(p.Category, model.CategoryOther)
	status := stringOr(p.Status, model.StatusCompliant)
	if !model.ValidCategory(category) {
		return errorOutcome(model.ActionCreate, 0, fmt.Errorf("invalid category %q", category))
	}
	if !model.ValidStatus(status) {
		return errorOutcome(model.ActionCreate, 0, fmt.Errorf("invalid status %q", status))
	}

	quantity := intOr(p.Quantity, 1)
	available := intOr(p.Available, quantity)

	item, err := store.CreateItem(ctx, db, userID, *p.TagRef, category, status, p.SiteID, quantity, available)
	if err != nil {
		return errorOutcome(model.ActionCreate, 0, err)
	}

	if err := store.RecordSyncEvent(ctx, db, userID, model.EntityItem, item.ID, model.ActionCreate, clientTS, batchID); err != nil {
		return errorOutcome(model.ActionCreate, item.ID, err)
	}

	return model.EventOutcome{Status: model.OutcomeOK, Action: model.ActionCreate, ID: item.ID}
}

// applyUpdate updates status/category/tag/site fields for the record
// matching the id and the authenticated user as owner. Absent payload fields
// keep their stored values.
func applyUpdate(ctx context.Context, db *sql.DB, userID int64, admin bool, batchID, clientTS string, p model.ItemPayload) model.EventOutcome {
	if p.ID <= 0 {
		return errorOutcome(model.ActionUpdate, p.ID, fmt.Errorf("id required"))
	}

	item, err := store.GetItem(ctx, db, p.ID)
	if err != nil {
		return errorOutcome(model.ActionUpdate, p.ID, err)
	}
	if item == nil || item.DeletedAt != nil {
		return errorOutcome(model.ActionUpdate, p.ID, fmt.Errorf("item not found"))
	}
	if item.OwnerUserID != userID && !admin {
		return errorOutcome(model.ActionUpdate, p.ID, fmt.Errorf("not the item owner"))
	}

	tagRef := stringOr(p.TagRef, item.TagRef)
	category := stringOr(p.Category, item.Category)
	status := stringOr(p.Status, item.Status)
	if !model.ValidCategory(category) {
		return errorOutcome(model.ActionUpdate, p.ID, fmt.Errorf("invalid category %q", category))
	}
	if !model.ValidStatus(status) {
		return errorOutcome(model.ActionUpdate, p.ID, fmt.Errorf("invalid status %q", status))
	}

	siteID := item.SiteID
	if p.SiteID != nil {
		siteID = p.SiteID
	}
	quantity := intOr(p.Quantity, item.Quantity)
	available := intOr(p.Available, item.Available)
	if available > quantity {
		return errorOutcome(model.ActionUpdate, p.ID, fmt.Errorf("available %d exceeds quantity %d", available, quantity))
	}

	if admin {
		if err := store.UpdateItem(ctx, db, p.ID, tagRef, category, status, siteID, quantity, available); err != nil {
			return errorOutcome(model.ActionUpdate, p.ID, err)
		}
	} else {
		// The write itself is owner-scoped, not just the check above.
		updated, err := store.UpdateItemOwned(ctx, db, p.ID, userID, tagRef, category, status, siteID, quantity, available)
		if err != nil {
			return errorOutcome(model.ActionUpdate, p.ID, err)
		}
		if !updated {
			return errorOutcome(model.ActionUpdate, p.ID, fmt.Errorf("item not found or not owned"))
		}
	}

	if err := store.RecordSyncEvent(ctx, db, userID, model.EntityItem, p.ID, model.ActionUpdate, clientTS, batchID); err != nil {
		return errorOutcome(model.ActionUpdate, p.ID, err)
	}

	return model.EventOutcome{Status: model.OutcomeOK, Action: model.ActionUpdate, ID: p.ID}
}

// applyDelete removes the record scoped to id + owner.
func applyDelete(ctx context.Context, db *sql.DB, userID int64, admin bool, batchID, clientTS string, p model.ItemPayload) model.EventOutcome {
	if p.ID <= 0 {
		return errorOutcome(model.ActionDelete, p.ID, fmt.Errorf("id required"))
	}

	var deleted bool
	var err error
	if admin {
		item, getErr := store.GetItem(ctx, db, p.ID)
		if getErr != nil {
			return errorOutcome(model.ActionDelete, p.ID, getErr)
		}
		if item == nil || item.DeletedAt != nil {
			return errorOutcome(model.ActionDelete, p.ID, fmt.Errorf("item not found"))
		}
		deleted, err = true, store.DeleteItem(ctx, db, p.ID)
	} else {
		deleted, err = store.DeleteItemOwned(ctx, db, p.ID, userID)
	}
	if err != nil {
		return errorOutcome(model.ActionDelete, p.ID, err)
	}
	if !deleted {
		return errorOutcome(model.ActionDelete, p.ID, fmt.Errorf("item not found or not owned"))
	}

	if err := store.RecordSyncEvent(ctx, db, userID, model.EntityItem, p.ID, model.ActionDelete, clientTS, batchID); err != nil {
		return errorOutcome(model.ActionDelete, p.ID, err)
	}

	return model.EventOutcome{Status: model.OutcomeOK, Action: model.ActionDelete, ID: p.ID}
}

func errorOutcome(action string, id int64, err error) model.EventOutcome {
	return model.EventOutcome{Status: model.OutcomeError, Action: action, ID: id, Message: err.Error()}
}

func stringOr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}

func intOr(n *int, fallback int) int {
	if n != nil {
		return *n
	}
	return fallback
}

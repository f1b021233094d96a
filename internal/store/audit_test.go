package store

import (
	"context"
	"testing"

	"github.com/tbechet/safestep/internal/db"
	"github.com/tbechet/safestep/internal/model"
)

func TestSyncEventAuditTrail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	err := RecordSyncEvent(ctx, database, 1, model.EntityItem, 42, model.ActionCreate, "2026-08-30 10:00:00", "batch-1")
	if err != nil {
		t.Fatalf("RecordSyncEvent: %v", err)
	}
	err = RecordSyncEvent(ctx, database, 1, model.EntityItem, 42, model.ActionUpdate, "2026-08-30 11:00:00", "batch-2")
	if err != nil {
		t.Fatalf("RecordSyncEvent: %v", err)
	}

	events, err := ListSyncEvents(ctx, database, model.EntityItem, 42)
	if err != nil {
		t.Fatalf("ListSyncEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(events))
	}
	// Newest first.
	if events[0].Action != model.ActionUpdate {
		t.Errorf("expected newest row first, got %q", events[0].Action)
	}
	if events[1].BatchID != "batch-1" {
		t.Errorf("expected batch id preserved, got %q", events[1].BatchID)
	}

	other, _ := ListSyncEvents(ctx, database, model.EntityItem, 99)
	if len(other) != 0 {
		t.Errorf("expected no rows for other item, got %d", len(other))
	}
}

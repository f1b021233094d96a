package client

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/tbechet/safestep/internal/model"
)

type stubDrainer struct {
	boundary int64
	calls    atomic.Int32
}

func (d *stubDrainer) TryDrain(ctx context.Context) error {
	d.calls.Add(1)
	return nil
}

func (d *stubDrainer) InFlightBoundary() int64 { return d.boundary }

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestEnqueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	w := &Writer{DB: db}
	if _, err := w.Enqueue(ctx, model.ActionCreate, model.EntityItem, model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001")}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := w.Enqueue(ctx, model.ActionUpdate, model.EntityItem, model.ItemPayload{ID: 7, Status: strPtr(model.StatusDamaged)}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	db.Close()

	// Simulates an app restart: queued intents must still be there.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer db.Close()

	entries, err := Snapshot(ctx, db)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", len(entries))
	}
	if entries[0].Action != model.ActionCreate || entries[1].Action != model.ActionUpdate {
		t.Errorf("entries out of order: %s, %s", entries[0].Action, entries[1].Action)
	}
	if entries[0].Seq >= entries[1].Seq {
		t.Errorf("sequences not increasing: %d, %d", entries[0].Seq, entries[1].Seq)
	}
}

func TestClearThroughKeepsLaterEntries(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	w := &Writer{DB: db}

	for i := 0; i < 3; i++ {
		if _, err := w.Enqueue(ctx, model.ActionUpdate, model.EntityItem, model.ItemPayload{ID: int64(i + 1), Status: strPtr(model.StatusCompliant)}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	snapshot, err := Snapshot(ctx, db)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	maxSeq := snapshot[len(snapshot)-1].Seq

	// A mutation recorded while the snapshot is in flight.
	late, err := w.Enqueue(ctx, model.ActionDelete, model.EntityItem, model.ItemPayload{ID: 9})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := ClearThrough(ctx, db, maxSeq); err != nil {
		t.Fatalf("ClearThrough: %v", err)
	}

	remaining, err := Snapshot(ctx, db)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(remaining))
	}
	if remaining[0].Seq != late.Seq {
		t.Errorf("expected surviving seq %d, got %d", late.Seq, remaining[0].Seq)
	}
}

func TestUpdateFoldsIntoPendingCreate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	w := &Writer{DB: db}

	if _, err := w.Enqueue(ctx, model.ActionCreate, model.EntityItem,
		model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001"), Status: strPtr(model.StatusCompliant)}); err != nil {
		t.Fatalf("Enqueue create: %v", err)
	}
	if _, err := w.Enqueue(ctx, model.ActionUpdate, model.EntityItem,
		model.ItemPayload{ID: -1, Status: strPtr(model.StatusDamaged), Quantity: intPtr(3)}); err != nil {
		t.Fatalf("Enqueue update: %v", err)
	}

	entries, _ := Snapshot(ctx, db)
	if len(entries) != 1 {
		t.Fatalf("expected update folded into create, got %d entries", len(entries))
	}
	if entries[0].Action != model.ActionCreate {
		t.Fatalf("expected CREATE entry, got %s", entries[0].Action)
	}

	var payload model.ItemPayload
	if err := json.Unmarshal(entries[0].Payload, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.TagRef == nil || *payload.TagRef != "EPI-001" {
		t.Error("fold lost the original tag_ref")
	}
	if payload.Status == nil || *payload.Status != model.StatusDamaged {
		t.Error("fold did not take the updated status")
	}
	if payload.Quantity == nil || *payload.Quantity != 3 {
		t.Error("fold did not take the updated quantity")
	}
}

func TestDeleteCancelsPendingCreate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	w := &Writer{DB: db}

	if _, err := w.Enqueue(ctx, model.ActionCreate, model.EntityItem,
		model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001")}); err != nil {
		t.Fatalf("Enqueue create: %v", err)
	}
	if _, err := w.Enqueue(ctx, model.ActionDelete, model.EntityItem, model.ItemPayload{ID: -1}); err != nil {
		t.Fatalf("Enqueue delete: %v", err)
	}

	n, err := QueueLen(ctx, db)
	if err != nil {
		t.Fatalf("QueueLen: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty queue after delete cancels create, got %d", n)
	}
}

func TestNoFoldWhenCreateInFlight(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	drainer := &stubDrainer{}
	w := &Writer{DB: db, Drainer: drainer}

	created, err := w.Enqueue(ctx, model.ActionCreate, model.EntityItem,
		model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001")})
	if err != nil {
		t.Fatalf("Enqueue create: %v", err)
	}

	// The create is part of an in-flight batch: the update must not
	// rewrite it.
	drainer.boundary = created.Seq
	if _, err := w.Enqueue(ctx, model.ActionUpdate, model.EntityItem,
		model.ItemPayload{ID: -1, Status: strPtr(model.StatusDamaged)}); err != nil {
		t.Fatalf("Enqueue update: %v", err)
	}

	n, _ := QueueLen(ctx, db)
	if n != 2 {
		t.Errorf("expected 2 entries with create in flight, got %d", n)
	}
}

func TestEnqueueOfflineDoesNotDrain(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	drainer := &stubDrainer{}
	w := &Writer{DB: db, Drainer: drainer, Online: func() bool { return false }}

	if _, err := w.Enqueue(ctx, model.ActionCreate, model.EntityItem,
		model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001")}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if got := drainer.calls.Load(); got != 0 {
		t.Errorf("expected no drain while offline, got %d", got)
	}

	w.Online = func() bool { return true }
	if _, err := w.Enqueue(ctx, model.ActionUpdate, model.EntityItem,
		model.ItemPayload{ID: 5, Status: strPtr(model.StatusDamaged)}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if got := drainer.calls.Load(); got != 1 {
		t.Errorf("expected 1 drain while online, got %d", got)
	}
}

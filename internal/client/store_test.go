package client

import (
	"context"
	"testing"
	"time"

	"github.com/tbechet/safestep/internal/model"
)

func TestPutAndGetItem(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	item := model.Item{
		ID:        42,
		TagRef:    "EPI-042",
		Category:  model.CategoryHelmet,
		Status:    model.StatusCompliant,
		Quantity:  2,
		Available: 1,
		LastCheck: "2026-08-01",
		UpdatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	if err := PutItem(ctx, db, item); err != nil {
		t.Fatalf("PutItem: %v", err)
	}

	got, err := GetItem(ctx, db, 42)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got == nil {
		t.Fatal("expected item, got nil")
	}
	if got.TagRef != "EPI-042" || got.Category != model.CategoryHelmet {
		t.Errorf("unexpected item: %+v", got)
	}
	if !got.UpdatedAt.Equal(item.UpdatedAt) {
		t.Errorf("expected updated_at %v, got %v", item.UpdatedAt, got.UpdatedAt)
	}
	if got.IsLocalOnly {
		t.Error("expected synced item, got local-only")
	}
}

func TestBulkPutRefresh(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	// A confirmed item that the server no longer returns (deleted remotely)
	// and a local-only item awaiting its first sync.
	PutItem(ctx, db, model.Item{ID: 1, TagRef: "GONE", Category: model.CategoryOther, Status: model.StatusCompliant, Quantity: 1, Available: 1})
	PutItem(ctx, db, model.Item{ID: -1, TagRef: "PENDING", Category: model.CategoryVest, Status: model.StatusCompliant, Quantity: 1, Available: 1, IsLocalOnly: true})

	canonical := []model.Item{
		{ID: 2, TagRef: "EPI-002", Category: model.CategoryHarness, Status: model.StatusCompliant, Quantity: 1, Available: 1},
		{ID: 3, TagRef: "EPI-003", Category: model.CategoryGloves, Status: model.StatusDamaged, Quantity: 4, Available: 2},
	}
	if err := BulkPut(ctx, db, canonical); err != nil {
		t.Fatalf("BulkPut: %v", err)
	}

	items, err := ListItems(ctx, db)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items (2 canonical + 1 local-only), got %d", len(items))
	}

	gone, _ := GetItem(ctx, db, 1)
	if gone != nil {
		t.Error("expected remotely deleted item to be dropped")
	}
	pending, _ := GetItem(ctx, db, -1)
	if pending == nil || !pending.IsLocalOnly {
		t.Error("expected local-only item to survive the refresh")
	}
}

func TestBulkPutIdempotent(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	canonical := []model.Item{
		{ID: 2, TagRef: "EPI-002", Category: model.CategoryHarness, Status: model.StatusCompliant, Quantity: 1, Available: 1},
		{ID: 3, TagRef: "EPI-003", Category: model.CategoryGloves, Status: model.StatusDamaged, Quantity: 4, Available: 2},
	}

	if err := BulkPut(ctx, db, canonical); err != nil {
		t.Fatalf("first BulkPut: %v", err)
	}
	first, _ := ListItems(ctx, db)

	if err := BulkPut(ctx, db, canonical); err != nil {
		t.Fatalf("second BulkPut: %v", err)
	}
	second, _ := ListItems(ctx, db)

	if len(first) != len(second) {
		t.Fatalf("refresh not idempotent: %d then %d items", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Status != second[i].Status {
			t.Errorf("item %d changed across identical refreshes", first[i].ID)
		}
	}
}

func TestNextProvisionalID(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	id, err := NextProvisionalID(ctx, db)
	if err != nil {
		t.Fatalf("NextProvisionalID: %v", err)
	}
	if id != -1 {
		t.Errorf("expected -1 for empty mirror, got %d", id)
	}

	PutItem(ctx, db, model.Item{ID: -1, TagRef: "A", Category: model.CategoryOther, Status: model.StatusCompliant, IsLocalOnly: true})
	PutItem(ctx, db, model.Item{ID: 10, TagRef: "B", Category: model.CategoryOther, Status: model.StatusCompliant})

	id, _ = NextProvisionalID(ctx, db)
	if id != -2 {
		t.Errorf("expected -2, got %d", id)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	v, err := GetMeta(ctx, db, "token")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value for unset key, got %q", v)
	}

	if err := SetMeta(ctx, db, "token", "abc"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := SetMeta(ctx, db, "token", "def"); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}

	v, _ = GetMeta(ctx, db, "token")
	if v != "def" {
		t.Errorf("expected 'def', got %q", v)
	}
}

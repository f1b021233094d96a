package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbechet/safestep/internal/model"
)

// fakeServer mimics the server's sync and items endpoints. The sync handler
// is pluggable so tests can control outcomes and inject mid-drain activity.
type fakeServer struct {
	*httptest.Server

	syncCalls  atomic.Int32
	fetchCalls atomic.Int32
	onSync     func(req model.SyncRequest) (int, model.SyncResponse)

	mu    sync.Mutex
	items []model.Item
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/items", func(w http.ResponseWriter, r *http.Request) {
		fs.fetchCalls.Add(1)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		json.NewEncoder(w).Encode(fs.items)
	})
	mux.HandleFunc("POST /api/sync", func(w http.ResponseWriter, r *http.Request) {
		fs.syncCalls.Add(1)

		var req model.SyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		status, resp := fs.onSync(req)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) setItems(items []model.Item) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.items = items
}

func okOutcomes(req model.SyncRequest, firstID int64) model.SyncResponse {
	resp := model.SyncResponse{Synced: len(req.Events)}
	for i, ev := range req.Events {
		resp.Results = append(resp.Results, model.EventOutcome{
			Status: model.OutcomeOK,
			Action: ev.Action,
			ID:     firstID + int64(i),
		})
	}
	return resp
}

func TestDrainConfirmsOfflineCreate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	fs := newFakeServer(t)
	fs.onSync = func(req model.SyncRequest) (int, model.SyncResponse) {
		if req.BatchID == "" {
			t.Error("expected a batch id")
		}
		return http.StatusOK, okOutcomes(req, 42)
	}
	fs.setItems([]model.Item{
		{ID: 42, TagRef: "EPI-001", Category: model.CategoryHelmet, Status: model.StatusCompliant, Quantity: 1, Available: 1},
	})

	// The offline create: provisional mirror row plus a queued intent.
	PutItem(ctx, db, model.Item{ID: -1, TagRef: "EPI-001", Category: model.CategoryHelmet, Status: model.StatusCompliant, Quantity: 1, Available: 1, IsLocalOnly: true})
	w := &Writer{DB: db}
	if _, err := w.Enqueue(ctx, model.ActionCreate, model.EntityItem,
		model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001"), Category: strPtr(model.CategoryHelmet)}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	rec := &Reconciler{DB: db, API: NewAPIClient(fs.URL, "token"), DeviceID: "dev-1"}
	if err := rec.TryDrain(ctx); err != nil {
		t.Fatalf("TryDrain: %v", err)
	}

	if n, _ := QueueLen(ctx, db); n != 0 {
		t.Errorf("expected empty queue after drain, got %d", n)
	}

	// The provisional row is gone, replaced by the server-assigned record.
	if pending, _ := GetItem(ctx, db, -1); pending != nil {
		t.Error("expected provisional item to be removed")
	}
	confirmed, _ := GetItem(ctx, db, 42)
	if confirmed == nil {
		t.Fatal("expected server-assigned item in the mirror")
	}
	if confirmed.IsLocalOnly {
		t.Error("expected confirmed item to not be local-only")
	}

	if last, _ := GetMeta(ctx, db, "last_sync"); last == "" {
		t.Error("expected last_sync to be recorded")
	}
}

func TestConcurrentDrainsSendOneBatch(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	fs := newFakeServer(t)
	fs.onSync = func(req model.SyncRequest) (int, model.SyncResponse) {
		time.Sleep(50 * time.Millisecond)
		return http.StatusOK, okOutcomes(req, 1)
	}

	w := &Writer{DB: db}
	if _, err := w.Enqueue(ctx, model.ActionCreate, model.EntityItem,
		model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001")}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	rec := &Reconciler{DB: db, API: NewAPIClient(fs.URL, "token"), DeviceID: "dev-1"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.TryDrain(ctx); err != nil {
				t.Errorf("TryDrain: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fs.syncCalls.Load(); got != 1 {
		t.Errorf("expected exactly 1 sync batch, got %d", got)
	}
	if rec.Syncing() {
		t.Error("expected reconciler to be idle after drains finish")
	}
}

func TestTransportFailureKeepsQueue(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	fs := newFakeServer(t)
	fs.onSync = func(req model.SyncRequest) (int, model.SyncResponse) {
		return http.StatusInternalServerError, model.SyncResponse{}
	}

	w := &Writer{DB: db}
	w.Enqueue(ctx, model.ActionCreate, model.EntityItem, model.ItemPayload{ID: -1, TagRef: strPtr("EPI-001")})
	w.Enqueue(ctx, model.ActionUpdate, model.EntityItem, model.ItemPayload{ID: 3, Status: strPtr(model.StatusDamaged)})

	rec := &Reconciler{DB: db, API: NewAPIClient(fs.URL, "token"), DeviceID: "dev-1"}
	if err := rec.TryDrain(ctx); err == nil {
		t.Fatal("expected drain to fail")
	}

	if n, _ := QueueLen(ctx, db); n != 2 {
		t.Errorf("expected queue untouched after transport failure, got %d entries", n)
	}
	if rec.Syncing() {
		t.Error("expected reconciler to be idle after failed drain")
	}
	if rec.InFlightBoundary() != 0 {
		t.Error("expected in-flight boundary reset after failed drain")
	}
}

func TestMidDrainEnqueueSurvivesClear(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	w := &Writer{DB: db}
	fs := newFakeServer(t)
	fs.onSync = func(req model.SyncRequest) (int, model.SyncResponse) {
		// A mutation lands while the batch is being applied.
		if _, err := w.Enqueue(ctx, model.ActionDelete, model.EntityItem, model.ItemPayload{ID: 8}); err != nil {
			t.Errorf("mid-drain Enqueue: %v", err)
		}
		return http.StatusOK, okOutcomes(req, 1)
	}

	w.Enqueue(ctx, model.ActionUpdate, model.EntityItem, model.ItemPayload{ID: 3, Status: strPtr(model.StatusDamaged)})

	rec := &Reconciler{DB: db, API: NewAPIClient(fs.URL, "token"), DeviceID: "dev-1"}
	if err := rec.TryDrain(ctx); err != nil {
		t.Fatalf("TryDrain: %v", err)
	}

	remaining, _ := Snapshot(ctx, db)
	if len(remaining) != 1 {
		t.Fatalf("expected the mid-drain entry to survive, got %d entries", len(remaining))
	}
	if remaining[0].Action != model.ActionDelete {
		t.Errorf("expected surviving DELETE, got %s", remaining[0].Action)
	}
}

func TestDrainWithEmptyQueueMakesNoRequests(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	fs := newFakeServer(t)
	fs.onSync = func(req model.SyncRequest) (int, model.SyncResponse) {
		return http.StatusOK, model.SyncResponse{}
	}

	rec := &Reconciler{DB: db, API: NewAPIClient(fs.URL, "token"), DeviceID: "dev-1"}
	if err := rec.TryDrain(ctx); err != nil {
		t.Fatalf("TryDrain: %v", err)
	}

	// Nothing queued: the drain returns to idle without any network call.
	if got := fs.syncCalls.Load(); got != 0 {
		t.Errorf("expected no sync call for an empty queue, got %d", got)
	}
	if got := fs.fetchCalls.Load(); got != 0 {
		t.Errorf("expected no item fetch for an empty queue, got %d", got)
	}
	if rec.Syncing() {
		t.Error("expected reconciler to be idle")
	}
}

func TestRefreshPullsMirror(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	fs := newFakeServer(t)
	fs.setItems([]model.Item{
		{ID: 5, TagRef: "EPI-005", Category: model.CategoryVest, Status: model.StatusCompliant, Quantity: 1, Available: 1},
	})

	rec := &Reconciler{DB: db, API: NewAPIClient(fs.URL, "token"), DeviceID: "dev-1"}
	if err := rec.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if item, _ := GetItem(ctx, db, 5); item == nil {
		t.Error("expected explicit refresh to fill the mirror")
	}
	if last, _ := GetMeta(ctx, db, "last_sync"); last == "" {
		t.Error("expected last_sync to be recorded")
	}
}

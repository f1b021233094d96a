package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tbechet/safestep/internal/model"
)

// Reconciler drains the mutation queue against the server and refreshes the
// local mirror from the canonical item set. At most one drain runs at a
// time; concurrent triggers are no-ops.
type Reconciler struct {
	DB       *sql.DB
	API      *APIClient
	DeviceID string

	draining    atomic.Bool
	inFlightMax atomic.Int64
}

// Syncing reports whether a drain is currently running.
func (r *Reconciler) Syncing() bool {
	return r.draining.Load()
}

// InFlightBoundary returns the highest queue sequence captured by the
// running drain's snapshot, or 0 when idle. Entries at or below the
// boundary must not be rewritten.
func (r *Reconciler) InFlightBoundary() int64 {
	return r.inFlightMax.Load()
}

// TryDrain runs one drain cycle unless a drain is already in progress, in
// which case it returns immediately. The cycle snapshots the queue, submits
// it as a single batch, clears the snapshotted entries on success, and
// refreshes the mirror from the server. An empty queue returns to idle
// immediately without touching the network. A transport failure leaves the
// queue untouched for the next attempt.
func (r *Reconciler) TryDrain(ctx context.Context) error {
	if !r.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		r.inFlightMax.Store(0)
		r.draining.Store(false)
	}()

	entries, err := Snapshot(ctx, r.DB)
	if err != nil {
		return fmt.Errorf("snapshotting queue: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	maxSeq := entries[len(entries)-1].Seq
	r.inFlightMax.Store(maxSeq)

	resp, err := r.pushBatch(ctx, entries)
	if err != nil {
		return err
	}

	// Entries enqueued after the snapshot have seq > maxSeq and survive
	// for the next cycle.
	if err := ClearThrough(ctx, r.DB, maxSeq); err != nil {
		return err
	}

	r.resolveProvisionals(ctx, entries, resp)

	return r.Refresh(ctx)
}

func (r *Reconciler) pushBatch(ctx context.Context, entries []QueueEntry) (*model.SyncResponse, error) {
	req := model.SyncRequest{
		BatchID:  uuid.NewString(),
		DeviceID: r.DeviceID,
		Events:   make([]model.SyncEvent, 0, len(entries)),
	}
	for _, entry := range entries {
		req.Events = append(req.Events, model.SyncEvent{
			Action:          entry.Action,
			EntityType:      entry.EntityType,
			Data:            entry.Payload,
			ClientTimestamp: entry.ClientTS,
		})
	}

	resp, err := r.API.PostSync(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pushing batch %s: %w", req.BatchID, err)
	}

	slog.Info("batch applied", "batch_id", req.BatchID, "events", len(entries), "synced", resp.Synced)
	for i, outcome := range resp.Results {
		if outcome.Status != model.OutcomeOK {
			slog.Warn("event not applied", "batch_id", req.BatchID, "index", i,
				"action", outcome.Action, "status", outcome.Status, "message", outcome.Message)
		}
	}
	return resp, nil
}

// resolveProvisionals removes local-only mirror rows whose CREATE the
// server acknowledged. The server-assigned row arrives with the refresh;
// the provisional (negative id) row would otherwise linger as a duplicate.
func (r *Reconciler) resolveProvisionals(ctx context.Context, entries []QueueEntry, resp *model.SyncResponse) {
	for i, entry := range entries {
		if entry.Action != model.ActionCreate || i >= len(resp.Results) {
			continue
		}
		if resp.Results[i].Status != model.OutcomeOK {
			continue
		}

		var payload model.ItemPayload
		if err := json.Unmarshal(entry.Payload, &payload); err != nil || payload.ID >= 0 {
			continue
		}
		if err := DeleteItem(ctx, r.DB, payload.ID); err != nil {
			slog.Warn("removing confirmed provisional item failed", "id", payload.ID, "error", err)
		}
	}
}

// Refresh replaces the confirmed part of the mirror with the server's
// canonical item set and records the sync time. Called after a pushed
// batch, and directly by the agent's login and sync commands.
func (r *Reconciler) Refresh(ctx context.Context) error {
	items, err := r.API.FetchItems(ctx)
	if err != nil {
		return fmt.Errorf("refreshing mirror: %w", err)
	}
	if err := BulkPut(ctx, r.DB, items); err != nil {
		return err
	}

	if err := SetMeta(ctx, r.DB, "last_sync", time.Now().UTC().Format(timeLayout)); err != nil {
		slog.Warn("recording last sync time failed", "error", err)
	}
	return nil
}

package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbechet/safestep/internal/model"
)

// QueueEntry is one durably recorded mutation intent awaiting confirmation
// by the server of record.
type QueueEntry struct {
	Seq        int64           `json:"seq"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	Payload    json.RawMessage `json:"payload"`
	ClientTS   string          `json:"client_ts"`
}

// Drainer is the reconciler surface the queue writer signals after an
// online enqueue.
type Drainer interface {
	TryDrain(ctx context.Context) error
	InFlightBoundary() int64
}

// Writer appends mutation intents to the durable queue. Enqueue always
// succeeds regardless of connectivity; when the monitor reports online it
// additionally asks the reconciler for an immediate best-effort drain.
type Writer struct {
	DB      *sql.DB
	Drainer Drainer     // optional
	Online  func() bool // optional; nil means unknown/offline
}

// Enqueue durably records an intent and returns the stored entry.
//
// Intents against a provisional (negative) id are folded into the pending
// CREATE for that id when the CREATE has not been snapshotted into an
// in-flight batch yet: an UPDATE rewrites the CREATE payload in place and a
// DELETE cancels it. This keeps unresolvable provisional ids from ever
// reaching the server.
func (w *Writer) Enqueue(ctx context.Context, action, entityType string, payload model.ItemPayload) (*QueueEntry, error) {
	if entityType == model.EntityItem && payload.ID < 0 && action != model.ActionCreate {
		entry, folded, err := w.foldProvisional(ctx, action, payload)
		if err != nil {
			return nil, err
		}
		if folded {
			w.signalDrain(ctx)
			return entry, nil
		}
	}

	entry, err := appendEntry(ctx, w.DB, action, entityType, payload)
	if err != nil {
		return nil, err
	}

	w.signalDrain(ctx)
	return entry, nil
}

func (w *Writer) signalDrain(ctx context.Context) {
	if w.Drainer == nil || w.Online == nil || !w.Online() {
		return
	}
	// Best effort: the enqueue itself is already durable.
	if err := w.Drainer.TryDrain(ctx); err != nil {
		slog.Warn("immediate drain after enqueue failed, queue retained", "error", err)
	}
}

// foldProvisional merges an UPDATE or DELETE against a provisional id into
// its still-queued CREATE. Reports folded=false when the CREATE is part of
// an in-flight snapshot (or gone), in which case the caller appends a plain
// entry and the server decides its fate.
func (w *Writer) foldProvisional(ctx context.Context, action string, payload model.ItemPayload) (*QueueEntry, bool, error) {
	var boundary int64
	if w.Drainer != nil {
		boundary = w.Drainer.InFlightBoundary()
	}

	entries, err := pendingCreates(ctx, w.DB, boundary)
	if err != nil {
		return nil, false, err
	}

	for _, entry := range entries {
		var existing model.ItemPayload
		if err := json.Unmarshal(entry.Payload, &existing); err != nil {
			continue
		}
		if existing.ID != payload.ID {
			continue
		}

		if action == model.ActionDelete {
			if _, err := w.DB.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq = ?`, entry.Seq); err != nil {
				return nil, false, fmt.Errorf("cancelling queued create: %w", err)
			}
			return &entry, true, nil
		}

		merged := mergePayload(existing, payload)
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, false, fmt.Errorf("encoding merged payload: %w", err)
		}
		if _, err := w.DB.ExecContext(ctx, `UPDATE sync_queue SET payload = ? WHERE seq = ?`, string(data), entry.Seq); err != nil {
			return nil, false, fmt.Errorf("rewriting queued create: %w", err)
		}
		entry.Payload = data
		return &entry, true, nil
	}

	return nil, false, nil
}

// mergePayload overlays the set fields of update onto base, keeping the
// base's (provisional) id.
func mergePayload(base, update model.ItemPayload) model.ItemPayload {
	if update.TagRef != nil {
		base.TagRef = update.TagRef
	}
	if update.Category != nil {
		base.Category = update.Category
	}
	if update.Status != nil {
		base.Status = update.Status
	}
	if update.SiteID != nil {
		base.SiteID = update.SiteID
	}
	if update.Quantity != nil {
		base.Quantity = update.Quantity
	}
	if update.Available != nil {
		base.Available = update.Available
	}
	if update.LastCheck != nil {
		base.LastCheck = update.LastCheck
	}
	return base
}

// appendEntry inserts one intent at the tail of the queue.
func appendEntry(ctx context.Context, db *sql.DB, action, entityType string, payload model.ItemPayload) (*QueueEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	clientTS := time.Now().UTC().Format(timeLayout)

	result, err := db.ExecContext(ctx,
		`INSERT INTO sync_queue (action, entity_type, payload, client_ts) VALUES (?, ?, ?, ?)`,
		action, entityType, string(data), clientTS,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueueing intent: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting queue sequence: %w", err)
	}

	return &QueueEntry{Seq: seq, Action: action, EntityType: entityType, Payload: data, ClientTS: clientTS}, nil
}

// Snapshot reads the entire current queue in insertion (replay) order.
func Snapshot(ctx context.Context, db *sql.DB) ([]QueueEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT seq, action, entity_type, payload, client_ts FROM sync_queue ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var entry QueueEntry
		var payload string
		if err := rows.Scan(&entry.Seq, &entry.Action, &entry.EntityType, &payload, &entry.ClientTS); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		entry.Payload = json.RawMessage(payload)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// pendingCreates returns queued CREATE entries past the in-flight snapshot
// boundary.
func pendingCreates(ctx context.Context, db *sql.DB, boundary int64) ([]QueueEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT seq, action, entity_type, payload, client_ts FROM sync_queue
		 WHERE action = ? AND seq > ? ORDER BY seq`,
		model.ActionCreate, boundary,
	)
	if err != nil {
		return nil, fmt.Errorf("reading pending creates: %w", err)
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var entry QueueEntry
		var payload string
		if err := rows.Scan(&entry.Seq, &entry.Action, &entry.EntityType, &payload, &entry.ClientTS); err != nil {
			return nil, fmt.Errorf("scanning queue entry: %w", err)
		}
		entry.Payload = json.RawMessage(payload)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClearThrough removes every entry up to and including maxSeq. Entries
// enqueued after a snapshot was taken have higher sequences and survive.
func ClearThrough(ctx context.Context, db *sql.DB, maxSeq int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sync_queue WHERE seq <= ?`, maxSeq)
	if err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	return nil
}

// QueueLen returns the number of queued intents.
func QueueLen(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queue: %w", err)
	}
	return n, nil
}

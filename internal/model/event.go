package model

import (
	"encoding/json"
	"time"
)

// Queue actions. Insertion order of queued intents is the replay order.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// EntityItem is the only entity type the reconciliation protocol currently
// carries. Events for other entity types are reported as ignored.
const EntityItem = "epi"

// Event outcome statuses.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeIgnored = "ignored"
)

// SyncEvent is one queued intent as it travels over the wire. Data is kept
// raw until the entity type is known, then decoded into a concrete payload.
type SyncEvent struct {
	Action          string          `json:"action"`
	EntityType      string          `json:"entity_type"`
	Data            json.RawMessage `json:"data"`
	ClientTimestamp string          `json:"client_timestamp"`
}

// ItemPayload is the validated event payload for entity type "epi".
// Pointer fields distinguish "absent" from zero values on UPDATE.
type ItemPayload struct {
	ID        int64   `json:"id,omitempty"`
	TagRef    *string `json:"tag_ref,omitempty"`
	Category  *string `json:"category,omitempty"`
	Status    *string `json:"status,omitempty"`
	SiteID    *int64  `json:"site_id,omitempty"`
	Quantity  *int    `json:"quantity,omitempty"`
	Available *int    `json:"available,omitempty"`
	LastCheck *string `json:"last_check,omitempty"`
}

// SyncRequest is the batch a client submits to POST /api/sync.
type SyncRequest struct {
	BatchID  string      `json:"batch_id,omitempty"`
	DeviceID string      `json:"device_id,omitempty"`
	Events   []SyncEvent `json:"events"`
}

// EventOutcome is the per-event result, returned in input order.
type EventOutcome struct {
	Status  string `json:"status"`
	Action  string `json:"action,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// SyncResponse reports how many events applied cleanly plus every outcome.
type SyncResponse struct {
	Synced  int            `json:"synced"`
	Results []EventOutcome `json:"results"`
}

// AuditEvent is one row of the server-side reconciliation audit log.
type AuditEvent struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	EntityType      string    `json:"entity_type"`
	ItemID          int64     `json:"item_id"`
	Action          string    `json:"action"`
	ClientTimestamp string    `json:"client_timestamp"`
	BatchID         string    `json:"batch_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

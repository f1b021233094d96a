package db

import (
	"database/sql"
	"fmt"
)

// schema is the full server database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    first_name    TEXT,
    last_name     TEXT,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS sites (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    city       TEXT,
    address    TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS site_user (
    site_id INTEGER NOT NULL REFERENCES sites(id),
    user_id INTEGER NOT NULL REFERENCES users(id),
    PRIMARY KEY (site_id, user_id)
);

CREATE TABLE IF NOT EXISTS items (
    id            INTEGER PRIMARY KEY,
    tag_ref       TEXT NOT NULL,
    category      TEXT NOT NULL CHECK (category IN ('helmet', 'harness', 'gas_detector', 'gloves', 'vest', 'other')),
    status        TEXT NOT NULL DEFAULT 'compliant' CHECK (status IN ('compliant', 'needs_inspection', 'damaged', 'under_maintenance')),
    site_id       INTEGER REFERENCES sites(id),
    owner_user_id INTEGER NOT NULL REFERENCES users(id),
    quantity      INTEGER NOT NULL DEFAULT 1 CHECK (quantity >= 0),
    available     INTEGER NOT NULL DEFAULT 1 CHECK (available >= 0 AND available <= quantity),
    last_check    TEXT NOT NULL DEFAULT (date('now')),
    photo         BLOB,
    photo_mime    TEXT,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_items_tag_ref_active
    ON items(tag_ref) WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_items_owner
    ON items(owner_user_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS sync_events (
    id               INTEGER PRIMARY KEY,
    user_id          INTEGER NOT NULL REFERENCES users(id),
    entity_type      TEXT NOT NULL,
    item_id          INTEGER NOT NULL,
    action           TEXT NOT NULL CHECK (action IN ('CREATE', 'UPDATE', 'DELETE')),
    client_timestamp TEXT NOT NULL,
    batch_id         TEXT,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sync_events_item
    ON sync_events(entity_type, item_id);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
